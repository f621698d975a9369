package controller

import (
	"context"
	"net/http"
	"time"

	"livestock/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// GET /api/listings/{listingId}/watch
//
// Streams a listing to a viewer: a snapshot on connect, a fresh snapshot
// with the leaderboard on every change and the time left once per second.
// Closing the connection only stops the stream.
func (c *Controller) Watch(w http.ResponseWriter, r *http.Request) {
	listingId := r.PathValue("listingId")
	if len(listingId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty listingId supplied")
		return
	}

	listing, err := c.service.GetListing(r.Context(), listingId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		c.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := c.service.Watch(ctx, listingId)
	if err != nil {
		c.log.Error("watch subscription failed", zap.String("listing_id", listingId), zap.Error(err))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"), time.Now().Add(writeWait))
		return
	}

	var countdown <-chan time.Duration
	var remaining time.Duration
	if listing.Status == models.ListingActive {
		countdown = c.service.Countdown(ctx, listing.EndTime)
		// the first value is sent right away, the snapshot carries it
		if left, ok := <-countdown; ok {
			remaining = left
		}
	}

	go c.readPump(conn, cancel)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := c.writeSnapshot(ctx, conn, "snapshot", listing, remaining); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-changes:
			if !ok {
				return
			}
			// events are hints, the snapshot is read again
			listing, err = c.service.GetListing(ctx, listingId)
			if err != nil {
				c.log.Warn("watch refresh failed", zap.String("listing_id", listingId), zap.Error(err))
				continue
			}
			if listing.Status != models.ListingActive {
				countdown = nil
				remaining = 0
			}
			if err := c.writeSnapshot(ctx, conn, string(event.Type), listing, remaining); err != nil {
				return
			}

		case left, ok := <-countdown:
			if !ok {
				countdown = nil
				// the end time passed, the read closes the listing if
				// nothing else has yet
				listing, err = c.service.GetListing(ctx, listingId)
				if err == nil {
					err = c.writeSnapshot(ctx, conn, string(models.EventListingClosed), listing, 0)
				}
				if err != nil {
					return
				}
				continue
			}
			remaining = left
			if err := c.writeJSON(conn, WatchMessage{Type: "tick", RemainingSeconds: int64(left / time.Second)}); err != nil {
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pongs and close frames are processed,
// cancelling the stream once the viewer goes away.
func (c *Controller) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("watch connection closed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Controller) writeSnapshot(ctx context.Context, conn *websocket.Conn, msgType string, listing models.Listing, remaining time.Duration) error {
	leaders, err := c.service.TopBidders(ctx, listing.Id, 0)
	if err != nil {
		c.log.Warn("watch leaderboard failed", zap.String("listing_id", listing.Id), zap.Error(err))
	}

	return c.writeJSON(conn, WatchMessage{
		Type:             msgType,
		Listing:          &listing,
		Leaderboard:      leaders,
		RemainingSeconds: int64(remaining / time.Second),
	})
}

func (c *Controller) writeJSON(conn *websocket.Conn, msg WatchMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
