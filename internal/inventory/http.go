package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HTTPProvider struct {
	BaseURL string
	Client  *http.Client
}

type boxInventory struct {
	BoxID      int `json:"box_id"`
	Implements []struct {
		Name        string `json:"name"`
		Operational bool   `json:"operational"`
	} `json:"implements"`
}

func (h HTTPProvider) NonOperational(ctx context.Context) (map[int]int, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+"/inventario/boxes", nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inventory responded %d", resp.StatusCode)
	}

	var items []boxInventory
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, err
	}

	out := make(map[int]int, len(items))
	for _, item := range items {
		broken := 0
		for _, impl := range item.Implements {
			if !impl.Operational {
				broken++
			}
		}
		if broken > 0 {
			out[item.BoxID] = broken
		}
	}
	return out, nil
}
