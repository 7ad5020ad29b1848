package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
	"github.com/hdcopilot/ticket-enrich-back/internal/tenant"
	"github.com/hdcopilot/ticket-enrich-back/internal/trace"
)

// State names the positions of the retry state machine. They exist so the
// audit log can say exactly where a call is, not just whether it failed.
type State string

const (
	StateAttempting         State = "attempting"
	StateSucceeded          State = "succeeded"
	StateRetryScheduled     State = "retry_scheduled"
	StateFailedPermanent    State = "failed_permanent"
	StateFailedAfterRetries State = "failed_after_retries"
)

// OutcomeStatus is the tri-state result the gateway hands back. The gateway
// never lets an error escape its boundary; callers branch on this instead.
type OutcomeStatus string

const (
	OutcomeOK               OutcomeStatus = "ok"
	OutcomePermanentError   OutcomeStatus = "permanent-error"
	OutcomeRetriesExhausted OutcomeStatus = "retries-exhausted"
)

// Error types carried on failed outcomes and into OutcomeRecord.error_type.
const (
	ErrorTypeAuthentication = "authentication"
	ErrorTypeBadRequest     = "bad_request"
	ErrorTypeNotFound       = "not_found"
	ErrorTypeServerError    = "server_error"
	ErrorTypeTimeout        = "timeout"
	ErrorTypeConnection     = "connection"
	ErrorTypeUnknown        = "unknown"
)

type Outcome struct {
	Status     OutcomeStatus
	HTTPStatus int
	ErrorType  string
	Detail     string
	Attempts   int
	NoteID     string
}

func (o Outcome) OK() bool { return o.Status == OutcomeOK }

type Config struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	TotalTimeout time.Duration
	HTTPClient   *http.Client

	// Sleep and Now are injectable so the backoff sequence is testable
	// without wall-clock delays.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Client posts enrichment notes to the external ticketing system with
// bounded retries and sequential backoff.
type Client struct {
	maxAttempts  int
	backoffBase  time.Duration
	totalTimeout time.Duration
	httpClient   *http.Client
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	logger       *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepWithContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		maxAttempts:  cfg.MaxAttempts,
		backoffBase:  cfg.BackoffBase,
		totalTimeout: cfg.TotalTimeout,
		httpClient:   cfg.HTTPClient,
		sleep:        cfg.Sleep,
		now:          cfg.Now,
		logger:       logger,
	}
}

// PostNote delivers the enrichment content as a note on the ticket:
// POST {base_url}/api/v3/requests/{ticket_id}/notes with the tenant's
// authtoken credential. Every attempt, retry, and terminal transition emits
// exactly one structured record carrying tenant, ticket, and correlation
// identity.
func (c *Client) PostNote(ctx context.Context, scope tenant.Scope, envelope domain.JobEnvelope, content string) Outcome {
	logger := trace.Logger(ctx, c.logger).With(
		zap.String("tenant_id", scope.TenantID()),
		zap.String("ticket_id", envelope.TicketID),
		zap.String("operation", "ticketing_note_post"),
	)

	body, err := json.Marshal(map[string]any{
		"note": map[string]any{
			"description":       content,
			"show_to_requester": true,
		},
	})
	if err != nil {
		return Outcome{
			Status:    OutcomePermanentError,
			ErrorType: ErrorTypeBadRequest,
			Detail:    fmt.Sprintf("encode note body: %v", err),
			Attempts:  0,
		}
	}

	url := fmt.Sprintf(
		"%s/api/v3/requests/%s/notes",
		strings.TrimSuffix(scope.Tenant().TicketingBaseURL, "/"),
		envelope.TicketID,
	)

	// The total budget is independent of backoff accounting: backoff waits
	// burn it down the same as request time does.
	callCtx, cancel := context.WithTimeout(ctx, c.totalTimeout)
	defer cancel()

	var last attemptResult
	attemptsMade := 0
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attemptsMade = attempt
		logger.Info("gateway attempt",
			zap.String("status", string(StateAttempting)),
			zap.Int("attempt_number", attempt),
		)

		last = c.attempt(callCtx, url, scope.Tenant().TicketingAuthToken, body)

		switch {
		case last.success:
			logger.Info("gateway call succeeded",
				zap.String("status", string(StateSucceeded)),
				zap.Int("attempt_number", attempt),
				zap.Int("http_status", last.httpStatus),
				zap.String("note_id", last.noteID),
			)
			return Outcome{
				Status:     OutcomeOK,
				HTTPStatus: last.httpStatus,
				Attempts:   attempt,
				NoteID:     last.noteID,
			}

		case last.permanent:
			// Repeated 401s across tenants are a credential-compromise
			// signal, so authentication failures log at error severity.
			terminal := logger.Warn
			if last.errorType == ErrorTypeAuthentication {
				terminal = logger.Error
			}
			terminal("gateway call failed permanently",
				zap.String("status", string(StateFailedPermanent)),
				zap.Int("attempt_number", attempt),
				zap.Int("http_status", last.httpStatus),
				zap.String("error_type", last.errorType),
				zap.String("detail", last.detail),
			)
			return Outcome{
				Status:     OutcomePermanentError,
				HTTPStatus: last.httpStatus,
				ErrorType:  last.errorType,
				Detail:     last.detail,
				Attempts:   attempt,
			}
		}

		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoffBase << (attempt - 1)
		logger.Warn("gateway retry scheduled",
			zap.String("status", string(StateRetryScheduled)),
			zap.Int("attempt_number", attempt),
			zap.Int("http_status", last.httpStatus),
			zap.String("error_type", last.errorType),
			zap.Duration("backoff", delay),
		)
		if err := c.sleep(callCtx, delay); err != nil {
			last.errorType = ErrorTypeTimeout
			last.detail = "total timeout budget exhausted during backoff"
			break
		}
	}

	logger.Warn("gateway retries exhausted",
		zap.String("status", string(StateFailedAfterRetries)),
		zap.Int("attempt_number", attemptsMade),
		zap.Int("http_status", last.httpStatus),
		zap.String("error_type", last.errorType),
		zap.String("detail", last.detail),
	)
	return Outcome{
		Status:     OutcomeRetriesExhausted,
		HTTPStatus: last.httpStatus,
		ErrorType:  last.errorType,
		Detail:     last.detail,
		Attempts:   attemptsMade,
	}
}

type attemptResult struct {
	success    bool
	permanent  bool
	httpStatus int
	errorType  string
	detail     string
	noteID     string
}

func (c *Client) attempt(ctx context.Context, url, authToken string, body []byte) attemptResult {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return attemptResult{errorType: ErrorTypeUnknown, detail: fmt.Sprintf("build request: %v", err)}
	}
	request.Header.Set("authtoken", authToken)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return attemptResult{errorType: ErrorTypeTimeout, detail: "request timed out"}
		}
		return attemptResult{errorType: ErrorTypeConnection, detail: fmt.Sprintf("connection failure: %v", err)}
	}
	defer response.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	if readErr != nil {
		return attemptResult{
			httpStatus: response.StatusCode,
			errorType:  ErrorTypeConnection,
			detail:     fmt.Sprintf("read response: %v", readErr),
		}
	}

	switch {
	case response.StatusCode == http.StatusOK || response.StatusCode == http.StatusCreated:
		return attemptResult{
			success:    true,
			httpStatus: response.StatusCode,
			noteID:     extractNoteID(raw),
		}
	case response.StatusCode == http.StatusUnauthorized:
		return attemptResult{
			permanent:  true,
			httpStatus: response.StatusCode,
			errorType:  ErrorTypeAuthentication,
			detail:     trimmedDetail(raw),
		}
	case response.StatusCode == http.StatusBadRequest:
		return attemptResult{
			permanent:  true,
			httpStatus: response.StatusCode,
			errorType:  ErrorTypeBadRequest,
			detail:     trimmedDetail(raw),
		}
	case response.StatusCode == http.StatusNotFound:
		return attemptResult{
			permanent:  true,
			httpStatus: response.StatusCode,
			errorType:  ErrorTypeNotFound,
			detail:     trimmedDetail(raw),
		}
	case response.StatusCode >= 500:
		return attemptResult{
			httpStatus: response.StatusCode,
			errorType:  ErrorTypeServerError,
			detail:     trimmedDetail(raw),
		}
	default:
		return attemptResult{
			httpStatus: response.StatusCode,
			errorType:  ErrorTypeUnknown,
			detail:     trimmedDetail(raw),
		}
	}
}

// extractNoteID pulls the note identifier out of a success body when
// present. Logged for audit only, never otherwise consumed.
func extractNoteID(raw []byte) string {
	var decoded struct {
		Note struct {
			ID json.Number `json:"id"`
		} `json:"note"`
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ""
	}
	if decoded.Note.ID != "" {
		return decoded.Note.ID.String()
	}
	return decoded.ID.String()
}

func trimmedDetail(raw []byte) string {
	detail := strings.TrimSpace(string(raw))
	if len(detail) > 700 {
		detail = detail[:700]
	}
	return detail
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
