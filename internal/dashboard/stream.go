package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"crisiswatch/internal/domain"
)

const reconnectDelay = 2 * time.Second

// streamPosts consumes the backend's SSE feed and invokes the callbacks
// on the caller's behalf. onConnect fires for every (re-)established
// connection; transport errors are logged and followed by a reconnect
// attempt until the context is canceled. Already-received posts are
// never discarded on error.
func streamPosts(
	ctx context.Context,
	baseURL string,
	logger logrus.FieldLogger,
	onConnect func(),
	onPost func(domain.Post),
) {
	url := strings.TrimRight(baseURL, "/") + "/stream"
	client := &http.Client{}

	for {
		if ctx.Err() != nil {
			return
		}
		if err := consumeStream(ctx, client, url, onConnect, onPost); err != nil && ctx.Err() == nil {
			logger.WithError(err).Warn("post stream interrupted, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func consumeStream(
	ctx context.Context,
	client *http.Client,
	url string,
	onConnect func(),
	onPost func(domain.Post),
) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned http %s", resp.Status)
	}

	onConnect()

	var eventName string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			eventName = ""
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if eventName != "tweet" {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			var post domain.Post
			if err := json.Unmarshal([]byte(data), &post); err != nil {
				continue
			}
			onPost(post)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by server")
}
