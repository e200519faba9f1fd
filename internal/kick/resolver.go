package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"
)

const (
	channelAPIBase = "https://kick.com/api/v2/channels"
	resolveTimeout = 30 * time.Second
)

// ResolutionError reports that a channel name could not be turned into a
// chatroom id. The listener must not open a socket after one of these.
type ResolutionError struct {
	Channel string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve chatroom id for %q: %v", e.Channel, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// RoomResolver turns a channel name into its numeric chatroom id. The channel
// page's embedded JSON is an external, shifting dependency, so every
// implementation hides behind this one interface and can be swapped or
// stubbed.
type RoomResolver interface {
	Resolve(ctx context.Context, channel string) (chatroomID int, slug string, err error)
}

// channelResponse is the shape of the public channel endpoint's JSON.
type channelResponse struct {
	ID       int    `json:"id"`
	Slug     string `json:"slug"`
	Chatroom struct {
		ID int `json:"id"`
	} `json:"chatroom"`
}

// APIResolver hits the channel endpoint directly with browser-alike headers.
// Cheaper than the browser resolver but blocked whenever Cloudflare decides
// the request looks automated.
type APIResolver struct {
	client *http.Client
}

// NewAPIResolver creates an APIResolver.
func NewAPIResolver() *APIResolver {
	return &APIResolver{client: &http.Client{Timeout: 10 * time.Second}}
}

// Resolve implements RoomResolver.
func (r *APIResolver) Resolve(ctx context.Context, channel string) (int, string, error) {
	url := fmt.Sprintf("%s/%s", channelAPIBase, channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", &ResolutionError{Channel: channel, Err: err}
	}
	setBrowserHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, "", &ResolutionError{Channel: channel, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, "", &ResolutionError{
			Channel: channel,
			Err:     fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var info channelResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return 0, "", &ResolutionError{Channel: channel, Err: fmt.Errorf("decode response: %w", err)}
	}
	if info.Chatroom.ID == 0 {
		return 0, "", &ResolutionError{Channel: channel, Err: fmt.Errorf("response carried no chatroom id")}
	}

	slug := info.Slug
	if slug == "" {
		slug = channel
	}

	return info.Chatroom.ID, slug, nil
}

// setBrowserHeaders makes the request look like a regular browser tab so the
// CDN serves it.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://kick.com/")
	req.Header.Set("Origin", "https://kick.com")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("sec-ch-ua", `"Chromium";v="143", "Not.A/Brand";v="24", "Google Chrome";v="143"`)
	req.Header.Set("sec-ch-ua-mobile", "?0")
	req.Header.Set("sec-ch-ua-platform", `"Windows"`)
}

// BrowserResolver renders the channel endpoint in headless Chrome and reads
// the chatroom id out of the rendered document. Slow, but it clears the
// Cloudflare checks that block the plain API call.
type BrowserResolver struct{}

// NewBrowserResolver creates a BrowserResolver.
func NewBrowserResolver() *BrowserResolver {
	return &BrowserResolver{}
}

// Resolve implements RoomResolver.
func (r *BrowserResolver) Resolve(ctx context.Context, channel string) (int, string, error) {
	url := fmt.Sprintf("%s/%s", channelAPIBase, channel)

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	cctx, ccancel := chromedp.NewContext(ctx)
	defer ccancel()

	var body string
	err := chromedp.Run(cctx,
		chromedp.Navigate(url),
		chromedp.Text("body", &body, chromedp.ByQuery),
	)
	if err != nil {
		return 0, "", &ResolutionError{Channel: channel, Err: fmt.Errorf("render channel page: %w", err)}
	}

	return parseChannelDocument(channel, body)
}

// parseChannelDocument extracts the chatroom id from the rendered document's
// embedded JSON.
func parseChannelDocument(channel, body string) (int, string, error) {
	if !gjson.Valid(body) {
		return 0, "", &ResolutionError{Channel: channel, Err: fmt.Errorf("rendered page is not JSON")}
	}

	id := gjson.Get(body, "chatroom.id")
	if !id.Exists() || id.Int() == 0 {
		return 0, "", &ResolutionError{Channel: channel, Err: fmt.Errorf("rendered page carried no chatroom id")}
	}

	slug := gjson.Get(body, "slug").String()
	if slug == "" {
		slug = channel
	}

	return int(id.Int()), slug, nil
}

// StaticResolver returns a pre-configured chatroom id, for operators who
// resolved it out of band (see tools/resolve-kick-rooms).
type StaticResolver struct {
	ChatroomID int
}

// Resolve implements RoomResolver.
func (r StaticResolver) Resolve(_ context.Context, channel string) (int, string, error) {
	if r.ChatroomID == 0 {
		return 0, "", &ResolutionError{Channel: channel, Err: fmt.Errorf("no chatroom id configured")}
	}
	return r.ChatroomID, channel, nil
}
