package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"livestock/internal/models"
	"livestock/internal/service"

	"go.uber.org/zap"
)

type Service interface {
	SubmitApplication(ctx context.Context, userId string, documents []string) (models.SellerEligibility, error)
	CheckStatus(ctx context.Context, userId string) (models.EligibilityStatus, error)
	ReviewApplication(ctx context.Context, userId string, decision models.ApprovalStatus) (models.SellerEligibility, error)

	CreateListing(ctx context.Context, req service.CreateListingRequest) (models.Listing, error)
	GetListing(ctx context.Context, id string) (models.Listing, error)
	ListListings(ctx context.Context, status models.ListingStatus, limit, offset int) ([]models.Listing, error)
	CancelListing(ctx context.Context, sellerId, id string) (models.Listing, error)
	MarkSold(ctx context.Context, sellerId, id, winnerId string) (models.Listing, error)
	Winner(ctx context.Context, listingId string) (service.WinnerResult, error)

	PlaceBid(ctx context.Context, req service.PlaceBidRequest) (service.BidResult, error)
	ListBids(ctx context.Context, listingId string) ([]models.Bid, error)
	TopBidders(ctx context.Context, listingId string, n int) ([]models.LeaderboardEntry, error)

	Watch(ctx context.Context, listingId string) (<-chan models.ListingEvent, error)
	Countdown(ctx context.Context, endTime time.Time) <-chan time.Duration
}

type Controller struct {
	service Service
	log     *zap.Logger
}

func NewController(service Service, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{service: service, log: log.Named("controller")}
}

// GET /api/ping
func (c *Controller) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

//// Applications

// POST /api/applications/new
func (c *Controller) NewApplication(w http.ResponseWriter, r *http.Request) {
	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewApplicationReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	eligibility, err := c.service.SubmitApplication(r.Context(), req.UserId, req.Documents)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, eligibility)
}

// GET /api/applications/{userId}/status
func (c *Controller) ApplicationStatus(w http.ResponseWriter, r *http.Request) {
	userId := r.PathValue("userId")
	if len(userId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty userId supplied")
		return
	}

	status, err := c.service.CheckStatus(r.Context(), userId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, status)
}

// PUT /api/applications/{userId}/review
func (c *Controller) ReviewApplication(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	userId := r.PathValue("userId")
	if len(userId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty userId supplied")
		return
	}

	decision := models.ApprovalStatus(query.Get("decision"))
	if !models.ValidReviewDecision(decision) {
		c.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid decision supplied: %s, should be one of: %s, %s, %s",
			decision, models.ApprovalApproved, models.ApprovalRejected, models.ApprovalBanned))
		return
	}

	eligibility, err := c.service.ReviewApplication(r.Context(), userId, decision)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, eligibility)
}

//// Listings

// GET /api/listings
func (c *Controller) GetListings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := c.getQueryInt(query, "limit")
	if err != nil || limit < 0 {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'limit' query parameter: "+query.Get("limit"))
		return
	}

	offset, err := c.getQueryInt(query, "offset")
	if err != nil || offset < 0 {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'offset' query parameter: "+query.Get("offset"))
		return
	}

	status := models.ListingStatus(query.Get("status"))
	if len(status) > 0 && !models.ValidListingStatus(status) {
		c.errorResponse(w, http.StatusBadRequest, "invalid listing status supplied: "+string(status))
		return
	}

	listings, err := c.service.ListListings(r.Context(), status, limit, offset)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	if listings == nil {
		listings = []models.Listing{}
	}

	c.marshalResponse(w, listings)
}

// POST /api/listings/new
func (c *Controller) NewListing(w http.ResponseWriter, r *http.Request) {
	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewListingReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := c.service.CreateListing(r.Context(), service.CreateListingRequest{
		SellerId:     req.SellerId,
		Title:        req.Title,
		Description:  req.Description,
		ImageURLs:    req.ImageURLs,
		StartingBid:  req.StartingBid,
		BidIncrement: req.BidIncrement,
		EndTime:      req.EndTime,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, listing)
}

// GET /api/listings/{listingId}
func (c *Controller) GetListing(w http.ResponseWriter, r *http.Request) {
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

	c.marshalResponse(w, listing)
}

// PUT /api/listings/{listingId}/cancel
func (c *Controller) CancelListing(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	userId := query.Get("userId")
	if len(userId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty userId supplied")
		return
	}

	listingId := r.PathValue("listingId")
	if len(listingId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty listingId supplied")
		return
	}

	listing, err := c.service.CancelListing(r.Context(), userId, listingId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, listing)
}

// PUT /api/listings/{listingId}/settle
func (c *Controller) SettleListing(w http.ResponseWriter, r *http.Request) {
	listingId := r.PathValue("listingId")
	if len(listingId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty listingId supplied")
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseSettleReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := c.service.MarkSold(r.Context(), req.SellerId, listingId, req.WinnerId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, listing)
}

// GET /api/listings/{listingId}/winner
func (c *Controller) Winner(w http.ResponseWriter, r *http.Request) {
	listingId := r.PathValue("listingId")
	if len(listingId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty listingId supplied")
		return
	}

	result, err := c.service.Winner(r.Context(), listingId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, result)
}

//// Bids

// POST /api/listings/{listingId}/bids
func (c *Controller) PlaceBid(w http.ResponseWriter, r *http.Request) {
	listingId := r.PathValue("listingId")
	if len(listingId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty listingId supplied")
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewBidReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	key := req.IdempotencyKey
	if len(key) == 0 {
		key = r.Header.Get("Idempotency-Key")
	}
	if err = checkLengthLimit(key, "Idempotency-Key", 100); err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := c.service.PlaceBid(r.Context(), service.PlaceBidRequest{
		ListingId:      listingId,
		BidderId:       req.BidderId,
		BidderName:     req.BidderName,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, result)
}

// GET /api/listings/{listingId}/bids
func (c *Controller) ListBids(w http.ResponseWriter, r *http.Request) {
	listingId := r.PathValue("listingId")
	if len(listingId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty listingId supplied")
		return
	}

	bids, err := c.service.ListBids(r.Context(), listingId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	if bids == nil {
		bids = []models.Bid{}
	}

	c.marshalResponse(w, bids)
}

// GET /api/listings/{listingId}/leaderboard
func (c *Controller) Leaderboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	listingId := r.PathValue("listingId")
	if len(listingId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty listingId supplied")
		return
	}

	n, err := c.getQueryInt(query, "n")
	if err != nil || n < 0 || n > 100 {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'n' query parameter: "+query.Get("n"))
		return
	}

	entries, err := c.service.TopBidders(r.Context(), listingId, n)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	c.marshalResponse(w, entries)
}

// Service

type ErrorResponse struct {
	Reason string `json:"reason"`
}

func (c *Controller) getQueryInt(query url.Values, key string) (int, error) {
	strs, ok := query[key]
	if ok && len(strs) > 0 {
		return strconv.Atoi(strs[0])
	}
	return 0, nil
}

func (c *Controller) errorResponse(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	data, err := json.Marshal(ErrorResponse{Reason: text})
	if err != nil {
		c.log.Error("could not marshal error response", zap.Error(err))
		return
	}

	_, err = w.Write(data)
	if err != nil {
		c.log.Debug("could not write error response", zap.Error(err))
		return
	}
}

// reason strips call-site prefixes, leaving the message of the error kind
// and whatever detail was attached to it.
func reason(err error, kind error) string {
	msg := err.Error()
	if i := strings.Index(msg, kind.Error()+": "); i >= 0 {
		return msg[i+len(kind.Error())+2:]
	}
	return msg
}

// conflicts are rejections caused by the current state of a record rather
// than by the request itself
var conflicts = []error{
	models.ErrAuctionClosed,
	models.ErrAuctionActive,
	models.ErrCooldownActive,
	models.ErrNoPendingApplication,
	models.ErrInvalidTransition,
	models.ErrIdempotencyReuse,
}

func (c *Controller) serviceErrorResponse(w http.ResponseWriter, err error) {
	switch {
	case models.IsForbidden(err):
		c.errorResponse(w, http.StatusForbidden, "user have no permission for requested action")
	case models.IsNotFound(err):
		c.errorResponse(w, http.StatusNotFound, reason(err, models.ErrNotFound))
	case models.IsValidation(err):
		status := http.StatusBadRequest
		for _, conflict := range conflicts {
			if errors.Is(err, conflict) {
				status = http.StatusConflict
				break
			}
		}
		c.errorResponse(w, status, reason(err, models.ErrValidation))
	case models.IsTransient(err):
		c.log.Warn("transient service error", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		c.errorResponse(w, http.StatusServiceUnavailable, models.ErrTransient.Error())
	case errors.Is(err, context.Canceled):
		c.errorResponse(w, 499, "request canceled")
	default:
		c.log.Error("internal service error", zap.Error(err))
		c.errorResponse(w, http.StatusInternalServerError, "internal server error")
	}
}

func (c *Controller) marshalResponse(w http.ResponseWriter, data any) {
	d, err := json.Marshal(data)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not marshal response data")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(d)
	if err != nil {
		c.log.Debug("could not write response data", zap.Error(err))
		return
	}
}

func (c *Controller) readBody(src io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, 1<<20))
	if err != nil {
		return nil, err
	}
	src.Close()
	return data, nil
}
