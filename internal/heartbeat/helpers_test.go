package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

func mockPost(ctx context.Context, url, token, page string) error {
	body, err := json.Marshal(map[string]string{"page": page})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat returned %d", resp.StatusCode)
	}
	return nil
}
