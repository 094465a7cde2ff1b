package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/greensafari/internal/challenge"
	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/errors"
	"github.com/victornm/greensafari/internal/leaderboard"
	"github.com/victornm/greensafari/internal/progress"
	"github.com/victornm/greensafari/internal/quiz"
)

const anonymousUser = "anonymous"

type (
	DailyChallenge struct {
		ID            string   `json:"id"`
		Question      string   `json:"question"`
		Options       []string `json:"options"`
		CorrectAnswer string   `json:"correct_answer"`
		Explanation   string   `json:"explanation"`
		Topic         string   `json:"topic"`
		Date          string   `json:"date,omitempty"`
		IsDaily       bool     `json:"isDaily"`
	}

	SubmitChallengeRequest struct {
		UserID        string `json:"userId"`
		Country       string `json:"country"`
		Answer        string `json:"answer" binding:"required"`
		CorrectAnswer string `json:"correctAnswer"`
	}

	SubmitChallengeResponse struct {
		Correct         bool    `json:"correct"`
		CorrectAnswer   string  `json:"correctAnswer"`
		Streak          int     `json:"streak"`
		XP              float64 `json:"xp"`
		AlreadyAnswered bool    `json:"alreadyAnswered"`
	}

	QuizQuestionsResponse struct {
		Success   bool                  `json:"success"`
		Questions []domain.QuizQuestion `json:"questions"`
		Note      string                `json:"note,omitempty"`
	}

	SubscribeRequest struct {
		Email string `json:"email"`
	}

	RecordProgressRequest struct {
		QuizID    string `json:"quizId" binding:"required"`
		Completed bool   `json:"completed"`
		Score     int    `json:"score" binding:"gte=0"`
	}

	CountriesResponse struct {
		Period    string                `json:"period"`
		Countries []domain.CountryEntry `json:"countries"`
	}
)

func (a *API) listCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": a.qs.Categories()})
}

func (a *API) listQuizQuestions(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		userID = forwardedFor(c)
	}
	if userID == "" {
		userID = anonymousUser
	}

	b := a.qs.QuestionBatch(c.Request.Context(), quiz.QuestionBatchRequest{
		Category: c.Query("category"),
		Count:    queryInt(c, "count"),
		UserID:   userID,
	})

	c.JSON(http.StatusOK, QuizQuestionsResponse{
		Success:   true,
		Questions: b.Questions,
		Note:      b.Note,
	})
}

func (a *API) listRandomQuiz(c *gin.Context) {
	qs := a.qs.RandomBatch(c.Request.Context(), queryInt(c, "count"))
	c.JSON(http.StatusOK, gin.H{"questions": qs})
}

func (a *API) getDailyChallenge(c *gin.Context) {
	var dc domain.DailyChallenge
	switch mode := c.DefaultQuery("mode", "daily"); mode {
	case "daily":
		dc = a.cs.Today(c.Request.Context())
	case "random":
		dc = a.cs.Random(c.Request.Context())
	default:
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown mode: %s", mode)))
		return
	}

	resp := DailyChallenge{
		ID:            dc.ChallengeID,
		Question:      dc.Question,
		Options:       dc.Options,
		CorrectAnswer: dc.CorrectAnswer,
		Explanation:   dc.Explanation,
		Topic:         dc.Topic,
		IsDaily:       dc.IsDaily,
	}
	if dc.IsDaily {
		resp.Date = dc.Date.Format(time.DateOnly)
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) submitDailyChallenge(c *gin.Context) {
	var req SubmitChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err)))
		return
	}

	resp, err := a.cs.Submit(c.Request.Context(), challenge.SubmitRequest{
		UserID:        req.UserID,
		Country:       req.Country,
		Answer:        req.Answer,
		CorrectAnswer: req.CorrectAnswer,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitChallengeResponse{
		Correct:         resp.Correct,
		CorrectAnswer:   resp.CorrectAnswer,
		Streak:          resp.Streak,
		XP:              resp.XP.InexactFloat64(),
		AlreadyAnswered: resp.AlreadyAnswered,
	})
}

func (a *API) subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err)))
		return
	}

	c.JSON(http.StatusOK, a.ss.Subscribe(c.Request.Context(), req.Email))
}

func (a *API) getUserStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.ps.Stats(c.Request.Context(), c.Param("userId")))
}

func (a *API) recordProgress(c *gin.Context) {
	var req RecordProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err)))
		return
	}

	a.ps.RecordQuiz(c.Request.Context(), progress.RecordQuizRequest{
		UserID:    c.Param("userId"),
		QuizID:    req.QuizID,
		Completed: req.Completed,
		Score:     req.Score,
	})

	c.Status(http.StatusNoContent)
}

func (a *API) getLeaderboard(c *gin.Context) {
	if a.ls == nil {
		c.JSON(http.StatusOK, domain.Leaderboard{
			Period:  leaderboard.Period(time.Now()),
			Entries: []domain.LeaderboardEntry{},
		})
		return
	}

	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Limit: queryInt(c, "limit"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

func (a *API) getCountries(c *gin.Context) {
	resp := CountriesResponse{
		Period:    leaderboard.Period(time.Now()),
		Countries: []domain.CountryEntry{},
	}

	if a.ls != nil {
		cs, err := a.ls.GetCountries(c.Request.Context(), leaderboard.GetCountriesRequest{
			Limit: queryInt(c, "limit"),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		resp.Countries = cs
	}

	c.JSON(http.StatusOK, resp)
}

// queryInt returns 0 for a missing or malformed parameter, leaving the default to the service.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}

	return n
}

// forwardedFor returns the first address of X-Forwarded-For.
func forwardedFor(c *gin.Context) string {
	h := c.GetHeader("X-Forwarded-For")
	if h == "" {
		return ""
	}

	first, _, _ := strings.Cut(h, ",")
	return strings.TrimSpace(first)
}
