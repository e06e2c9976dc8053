// ABOUTME: REST client for the Guessong catalog and lobby endpoints
// ABOUTME: Supplies library metadata, track lists and lobby create/join
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AleixFerre/guessong-client/internal/protocol"
)

// LibraryInfo describes one selectable track library.
type LibraryInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TrackCount  int    `json:"trackCount"`
}

// Track is one catalog entry, used to build guess-option pools.
type Track struct {
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Origin   string  `json:"origin,omitempty"`
	Duration float64 `json:"duration"`
}

// CreateLobbyRequest are the host-chosen initial settings.
type CreateLobbyRequest struct {
	Username      string `json:"username"`
	Mode          string `json:"mode"`
	Library       string `json:"library"`
	RoundDuration int    `json:"roundDuration"`
	MaxPlayers    int    `json:"maxPlayers"`
}

// LobbyResponse is returned by both create and join.
type LobbyResponse struct {
	LobbyID    string                 `json:"lobbyId"`
	PlayerID   string                 `json:"playerId"`
	LobbyState protocol.LobbySnapshot `json:"lobbyState"`
}

// Client talks to the catalog service. It is read-mostly and stateless;
// the real-time lobby flow lives on the WebSocket, not here.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a catalog client rooted at baseURL (".../api").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Libraries lists the available track libraries.
func (c *Client) Libraries(ctx context.Context) ([]LibraryInfo, error) {
	var libs []LibraryInfo
	if err := c.get(ctx, "/libraries", &libs); err != nil {
		return nil, err
	}
	return libs, nil
}

// Tracks lists the tracks of one library.
func (c *Client) Tracks(ctx context.Context, libraryID string) ([]Track, error) {
	var tracks []Track
	if err := c.get(ctx, "/libraries/"+libraryID+"/tracks", &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// CreateLobby creates a lobby and seats the caller as host.
func (c *Client) CreateLobby(ctx context.Context, req CreateLobbyRequest) (*LobbyResponse, error) {
	var resp LobbyResponse
	if err := c.post(ctx, "/lobbies", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinLobby seats the caller in an existing lobby.
func (c *Client) JoinLobby(ctx context.Context, lobbyID, username string) (*LobbyResponse, error) {
	var resp LobbyResponse
	body := map[string]string{"username": username}
	if err := c.post(ctx, "/lobbies/"+lobbyID+"/join", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, endpoint, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
