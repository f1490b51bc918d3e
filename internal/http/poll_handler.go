package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poll-api/internal/domain"
	"poll-api/internal/service"
)

// PollHandler mantiene dependencias para endpoints de encuestas y votos.
type PollHandler struct {
	logger        *zap.Logger
	polls         *service.PollService
	votes         *service.VoteService
	publicBaseURL string
}

func NewPollHandler(logger *zap.Logger, polls *service.PollService, votes *service.VoteService, publicBaseURL string) *PollHandler {
	return &PollHandler{
		logger:        logger,
		polls:         polls,
		votes:         votes,
		publicBaseURL: publicBaseURL,
	}
}

// pollResponse es la vista publica de una encuesta: los emails de votantes no salen.
type pollResponse struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id,omitempty"`
	Question   string          `json:"question"`
	Options    []domain.Option `json:"options"`
	Votes      []int           `json:"votes"`
	VoterCount int             `json:"voter_count"`
	CreatedAt  time.Time       `json:"created_at"`
}

func toPollResponse(p domain.Poll) pollResponse {
	options := p.Options
	if options == nil {
		options = []domain.Option{}
	}
	votes := p.Votes
	if votes == nil {
		votes = []int{}
	}
	return pollResponse{
		ID:         p.ID,
		OwnerID:    p.OwnerID,
		Question:   p.Question,
		Options:    options,
		Votes:      votes,
		VoterCount: len(p.Voters),
		CreatedAt:  p.CreatedAt,
	}
}

// optionSelector acepta la posicion (base 1) como numero JSON o como string numerico.
type optionSelector int

var errInvalidSelector = errors.New("option must be a number")

func (o *optionSelector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errInvalidSelector
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return errInvalidSelector
		}
		*o = optionSelector(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return errInvalidSelector
	}
	*o = optionSelector(n)
	return nil
}

// CreatePoll maneja POST /api/polls. Requiere sesion.
func (h *PollHandler) CreatePoll(c *gin.Context) {
	var req struct {
		Question string   `json:"question" binding:"required"`
		Options  []string `json:"options" binding:"required,min=2"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, "create poll", err)
		return
	}
	claims, _ := GetAuthClaims(c)

	poll, err := h.polls.CreatePoll(c.Request.Context(), service.CreatePollInput{
		OwnerID:  claims.UserID,
		Question: req.Question,
		Options:  req.Options,
	})
	if err != nil {
		respondError(c, h.logger, "create poll", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Poll created successfully",
		"id":      poll.ID,
		"link":    baseURL(c, h.publicBaseURL) + "/api/polls/" + poll.ID + "/vote",
		"poll":    toPollResponse(poll),
	})
}

// ListPolls maneja GET /api/polls/viewall.
func (h *PollHandler) ListPolls(c *gin.Context) {
	polls, err := h.polls.ListPolls(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "list polls", err)
		return
	}
	out := make([]pollResponse, 0, len(polls))
	for _, p := range polls {
		out = append(out, toPollResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

// GetPoll maneja GET /api/polls/:id.
func (h *PollHandler) GetPoll(c *gin.Context) {
	poll, err := h.polls.GetPoll(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "get poll", err)
		return
	}
	c.JSON(http.StatusOK, toPollResponse(poll))
}

// CastVote maneja POST /api/polls/:id/vote. option es la posicion base 1 en la lista.
func (h *PollHandler) CastVote(c *gin.Context) {
	var req struct {
		Option *optionSelector `json:"option" binding:"required"`
		Email  string          `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, errInvalidSelector) {
			h.logger.Warn("invalid vote request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrInvalidOption.Error(), "field": "option"})
			return
		}
		bindError(c, h.logger, "vote", err)
		return
	}

	res, err := h.votes.CastVote(c.Request.Context(), service.CastVoteInput{
		PollID:   c.Param("id"),
		Position: int(*req.Option),
		Email:    req.Email,
		BaseURL:  baseURL(c, h.publicBaseURL),
	})
	if err != nil {
		respondError(c, h.logger, "vote", err)
		return
	}
	status := http.StatusOK
	if res.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"message": res.Message, "option": res.Option, "pending": res.Pending})
}

// ConfirmVote maneja POST /api/verify-voters/:pollId.
func (h *PollHandler) ConfirmVote(c *gin.Context) {
	var req struct {
		UserInput string `json:"userInput"`
		Email     string `json:"email"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, h.logger, "confirm vote", err)
			return
		}
	}
	submitted := tokenParam(c, req.UserInput)
	if strings.TrimSpace(submitted) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userInput field can't be left empty", "field": "userInput"})
		return
	}
	h.confirm(c, submitted, req.Email)
}

// ConfirmVoteLink maneja GET /api/verify-voters/:pollId/:token, el enlace del correo.
func (h *PollHandler) ConfirmVoteLink(c *gin.Context) {
	h.confirm(c, tokenParam(c, ""), "")
}

func (h *PollHandler) confirm(c *gin.Context, submitted, voter string) {
	res, err := h.votes.ConfirmVote(c.Request.Context(), c.Param("pollId"), submitted, voter, baseURL(c, h.publicBaseURL))
	if err != nil {
		respondError(c, h.logger, "confirm vote", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": res.Message, "option": res.Option})
}

// Winner maneja GET /api/polls/:id/winner.
func (h *PollHandler) Winner(c *gin.Context) {
	res, err := h.polls.Winner(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "winner", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"winner": res.Winner, "votes": res.Votes, "tie": res.Tie})
}

// DeletePoll maneja DELETE /api/polls/:id. Requiere sesion.
func (h *PollHandler) DeletePoll(c *gin.Context) {
	if err := h.polls.DeletePoll(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "delete poll", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Poll deleted successfully"})
}

// RemoveOption maneja DELETE /api/polls/:id/options/:optionId. Requiere sesion.
func (h *PollHandler) RemoveOption(c *gin.Context) {
	votes, err := h.polls.RemoveOption(c.Request.Context(), c.Param("id"), c.Param("optionId"))
	if errors.Is(err, service.ErrOptionHasVotes) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "votes": votes})
		return
	}
	if err != nil {
		respondError(c, h.logger, "remove option", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Option deleted successfully"})
}
