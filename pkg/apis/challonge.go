package apis

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	challongeService = "challonge"
	challongeTimeout = 7 * time.Second
	challongeHost    = "https://api.challonge.com/v1"
)

// ChallongeParticipant is one tournament entrant.
type ChallongeParticipant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Misc string `json:"misc"`
}

// ChallongeMatch is one bracket match.
type ChallongeMatch struct {
	ID                 int64  `json:"id"`
	State              string `json:"state"`
	Player1ID          int64  `json:"player1_id"`
	Player2ID          int64  `json:"player2_id"`
	WinnerID           int64  `json:"winner_id"`
	ScoresCSV          string `json:"scores_csv"`
	UnderwayAt         string `json:"underway_at"`
	SuggestedPlayOrder int64  `json:"suggested_play_order"`
}

// ChallongeTournament is a bracket with its matches and participants keyed
// by id.
type ChallongeTournament struct {
	ID           int64                           `json:"id"`
	Name         string                          `json:"name"`
	State        string                          `json:"state"`
	Matches      map[int64]*ChallongeMatch       `json:"-"`
	Participants map[int64]*ChallongeParticipant `json:"-"`
}

type wrappedMatch struct {
	Match *ChallongeMatch `json:"match"`
}

type wrappedParticipant struct {
	Participant *ChallongeParticipant `json:"participant"`
}

type wrappedTournament struct {
	Tournament struct {
		ChallongeTournament
		Matches      []wrappedMatch       `json:"matches"`
		Participants []wrappedParticipant `json:"participants"`
	} `json:"tournament"`
}

// Challonge manages one tournament bracket.
type Challonge struct {
	token     string
	tourneyID string
	host      string
	http      *retryablehttp.Client
	log       *zap.Logger
}

// NewChallonge creates a bracket client for one tournament.
func NewChallonge(token, tourneyID string, log *zap.Logger) *Challonge {
	return &Challonge{
		token:     token,
		tourneyID: tourneyID,
		host:      challongeHost,
		http:      newHTTPClient(challongeTimeout),
		log:       log.Named(challongeService),
	}
}

func (c *Challonge) buildURL(path ...string) string {
	segments := append([]string{c.tourneyID}, path...)
	return fmt.Sprintf("%s/tournaments/%s.json?api_key=%s",
		c.host, strings.Join(segments, "/"), url.QueryEscape(c.token))
}

func extractMatches(wrapped []wrappedMatch) map[int64]*ChallongeMatch {
	out := make(map[int64]*ChallongeMatch, len(wrapped))
	for _, w := range wrapped {
		if w.Match != nil {
			out[w.Match.ID] = w.Match
		}
	}
	return out
}

func extractParticipants(wrapped []wrappedParticipant) map[int64]*ChallongeParticipant {
	out := make(map[int64]*ChallongeParticipant, len(wrapped))
	for _, w := range wrapped {
		if w.Participant != nil {
			out[w.Participant.ID] = w.Participant
		}
	}
	return out
}

// Start starts the tournament and returns the full bracket.
func (c *Challonge) Start(ctx context.Context) (*ChallongeTournament, error) {
	url := c.buildURL("start") + "&include_participants=1&include_matches=1"
	var body wrappedTournament
	if err := requestJSON(ctx, c.http, c.log, challongeService, http.MethodPost, url, nil, &body); err != nil {
		return nil, err
	}
	tournament := body.Tournament.ChallongeTournament
	tournament.Matches = extractMatches(body.Tournament.Matches)
	tournament.Participants = extractParticipants(body.Tournament.Participants)
	return &tournament, nil
}

// AddParticipant registers an entrant on the bracket.
func (c *Challonge) AddParticipant(ctx context.Context, name, misc string) (*ChallongeParticipant, error) {
	payload := map[string]any{"participant": map[string]any{"name": name, "misc": misc}}
	var body wrappedParticipant
	err := requestJSON(ctx, c.http, c.log, challongeService, http.MethodPost,
		c.buildURL("participants"), payload, &body)
	if err != nil {
		return nil, err
	}
	return body.Participant, nil
}

// Matches fetches the bracket's matches keyed by id.
func (c *Challonge) Matches(ctx context.Context) (map[int64]*ChallongeMatch, error) {
	var body []wrappedMatch
	err := requestJSON(ctx, c.http, c.log, challongeService, http.MethodGet,
		c.buildURL("matches"), nil, &body)
	if err != nil {
		return nil, err
	}
	return extractMatches(body), nil
}

// Participants fetches the bracket's entrants keyed by id.
func (c *Challonge) Participants(ctx context.Context) (map[int64]*ChallongeParticipant, error) {
	var body []wrappedParticipant
	err := requestJSON(ctx, c.http, c.log, challongeService, http.MethodGet,
		c.buildURL("participants"), nil, &body)
	if err != nil {
		return nil, err
	}
	return extractParticipants(body), nil
}

// StartMatch marks a match as underway.
func (c *Challonge) StartMatch(ctx context.Context, matchID int64) (*ChallongeMatch, error) {
	var body wrappedMatch
	err := requestJSON(ctx, c.http, c.log, challongeService, http.MethodPost,
		c.buildURL("matches", fmt.Sprint(matchID), "mark_as_underway"), nil, &body)
	if err != nil {
		return nil, err
	}
	return body.Match, nil
}

// UpdateMatch reports a match result. An empty score reports 0-0.
func (c *Challonge) UpdateMatch(ctx context.Context, matchID int64, score string, winnerID int64) (*ChallongeMatch, error) {
	if score == "" {
		score = "0-0"
	}
	payload := map[string]any{"match": map[string]any{"scores_csv": score, "winner_id": winnerID}}
	var body wrappedMatch
	err := requestJSON(ctx, c.http, c.log, challongeService, http.MethodPut,
		c.buildURL("matches", fmt.Sprint(matchID)), payload, &body)
	if err != nil {
		return nil, err
	}
	return body.Match, nil
}
