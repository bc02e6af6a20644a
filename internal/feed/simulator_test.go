package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crisiswatch/internal/domain"
)

func writeWaveFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write wave file: %v", err)
	}
}

func newTestSimulator(t *testing.T, delay time.Duration) (*Simulator, string) {
	t.Helper()
	dir := t.TempDir()
	writeWaveFile(t, dir, "tweets.json", `{
		"wave": 1,
		"tweets": [
			{"id": "101", "user": "@angrybrewfan", "text": "bad coffee", "likes": 10, "retweets": 2},
			{"id": "102", "user": "@coffee_karen", "text": "never again", "likes": 5, "retweets": 1}
		]
	}`)
	writeWaveFile(t, dir, "tweets_wave2.json", `{
		"wave": 2,
		"tweets": [
			{"id": "201", "user": "@pressroomwire", "text": "story breaking", "likes": 50, "retweets": 20}
		]
	}`)
	return New(dir, delay, 1, nil), dir
}

func TestLoadWaveStampsWaveNumber(t *testing.T) {
	sim, _ := newTestSimulator(t, time.Millisecond)

	wave, err := sim.LoadWave(2)
	if err != nil {
		t.Fatalf("load wave: %v", err)
	}
	if wave.Wave != 2 {
		t.Fatalf("wave=%d want=2", wave.Wave)
	}
	for _, p := range wave.Tweets {
		if p.Wave != 2 {
			t.Fatalf("post %s stamped wave=%d want=2", p.ID, p.Wave)
		}
	}
}

func TestLoadWaveFillsMissingIDs(t *testing.T) {
	dir := t.TempDir()
	writeWaveFile(t, dir, "tweets.json", `{"tweets": [{"user": "@anon", "text": "hi"}]}`)
	sim := New(dir, time.Millisecond, 1, nil)

	wave, err := sim.LoadWave(1)
	if err != nil {
		t.Fatalf("load wave: %v", err)
	}
	if wave.Tweets[0].ID == "" {
		t.Fatal("missing post id not filled")
	}
	if wave.Wave != 1 {
		t.Fatalf("wave=%d want=1 fallback", wave.Wave)
	}
}

func TestLoadWaveMissingFile(t *testing.T) {
	sim, _ := newTestSimulator(t, time.Millisecond)
	if _, err := sim.LoadWave(9); !errors.Is(err, ErrWaveNotFound) {
		t.Fatalf("error=%v want=ErrWaveNotFound", err)
	}
}

func TestEmitOrderAndInjection(t *testing.T) {
	sim, _ := newTestSimulator(t, time.Millisecond)
	id, ch := sim.Subscribe()
	defer sim.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.Start(ctx)

	recv := func() domain.Post {
		t.Helper()
		select {
		case p := <-ch:
			return p
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a post")
			return domain.Post{}
		}
	}

	first := recv()
	second := recv()
	if first.ID != "101" || second.ID != "102" {
		t.Fatalf("arrival order broken: got %s then %s", first.ID, second.ID)
	}
	if first.Wave != 1 {
		t.Fatalf("first post wave=%d want=1", first.Wave)
	}

	count, err := sim.InjectWave(2)
	if err != nil {
		t.Fatalf("inject wave: %v", err)
	}
	if count != 1 {
		t.Fatalf("injected %d posts, want 1", count)
	}

	third := recv()
	if third.ID != "201" || third.Wave != 2 {
		t.Fatalf("unexpected injected post: %+v", third)
	}
}

func TestInjectSinglePost(t *testing.T) {
	dir := t.TempDir()
	writeWaveFile(t, dir, "tweets.json", `{"tweets": []}`)
	sim := New(dir, time.Millisecond, 1, nil)

	id, ch := sim.Subscribe()
	defer sim.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.Start(ctx)

	sim.Inject(domain.Post{User: "@adhoc", Text: "manual post", Wave: 3})

	select {
	case p := <-ch:
		if p.User != "@adhoc" || p.ID == "" {
			t.Fatalf("unexpected post: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the injected post")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	sim, _ := newTestSimulator(t, time.Millisecond)
	id, ch := sim.Subscribe()
	sim.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}
	// Double unsubscribe is a no-op.
	sim.Unsubscribe(id)
}
