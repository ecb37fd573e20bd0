package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmphat/bandlab/config"
	"github.com/vmphat/bandlab/internal/model"
)

// RawScore is the normalized result of one external scoring call, whether
// the model answered with a direct band or a CEFR level.
type RawScore struct {
	Skill        model.Skill
	Band         float64
	Confidence   float64
	SubScores    map[string]float64
	Criteria     map[string]string
	Feedback     string
	Strengths    []string
	Improvements []string
	Suggestions  []string
	CEFRLevel    *string
	CEFRFallback bool
	Transcript   *string
}

// AudioSubmission is a speaking recording handed to the scoring service.
type AudioSubmission struct {
	Filename string
	Data     []byte
	Language string
	// Duration is taken from upload metadata when the caller knows it;
	// zero means unknown and skips the duration check.
	Duration time.Duration
}

// Transcript is the result of a transcription-only call.
type Transcript struct {
	Text      string
	Language  string
	Duration  float64
	WordCount int
}

// ScoringClient talks to the external AI scoring service. Input validation
// happens before any network call; transient failures are retried a fixed
// number of times with a fixed delay.
type ScoringClient interface {
	ScoreWriting(ctx context.Context, prompt, essay string) (*RawScore, error)
	ScoreSpeakingText(ctx context.Context, transcript string) (*RawScore, error)
	ScoreSpeakingAudio(ctx context.Context, audio AudioSubmission) (*RawScore, error)
	Transcribe(ctx context.Context, audio AudioSubmission) (*Transcript, error)
}

type scoringClient struct {
	baseURL   string
	client    *http.Client
	cfg       config.Scoring
	converter BandConverterService
}

func NewScoringClient(cfg *config.Config, converter BandConverterService) ScoringClient {
	return &scoringClient{
		baseURL: strings.TrimRight(cfg.Scoring.BaseURL, "/"),
		// Per-call deadlines come from request contexts; no global timeout.
		client:    &http.Client{},
		cfg:       cfg.Scoring,
		converter: converter,
	}
}

// Wire types mirror the scoring service's JSON contract.

type writingScoreRequest struct {
	Prompt string `json:"prompt,omitempty"`
	Essay  string `json:"essay"`
}

type bandPrediction struct {
	Band        float64 `json:"band"`
	Probability float64 `json:"probability"`
}

type writingScoreResponse struct {
	OverallBand    float64            `json:"overall_band"`
	Confidence     float64            `json:"confidence"`
	TopPredictions []bandPrediction   `json:"top_predictions"`
	Feedback       map[string]string  `json:"feedback"`
	SubScores      map[string]float64 `json:"sub_scores"`
	Strengths      []string           `json:"strengths"`
	Improvements   []string           `json:"areas_for_improvement"`
	Suggestions    []string           `json:"suggestions"`
}

type speakingTextRequest struct {
	AnswerText string `json:"answer_text"`
}

type transcriptInfo struct {
	Language        string  `json:"language"`
	DurationSeconds float64 `json:"duration_seconds"`
	WordCount       int     `json:"word_count"`
	Confidence      float64 `json:"confidence"`
}

type speakingScoreResponse struct {
	CEFRLevel      string             `json:"cefr_level"`
	ApproxBand     float64            `json:"approx_ielts_band"`
	Feedback       map[string]string  `json:"feedback"`
	SubScores      map[string]float64 `json:"sub_scores"`
	Strengths      []string           `json:"strengths"`
	Improvements   []string           `json:"areas_for_improvement"`
	Suggestions    []string           `json:"suggestions"`
	Transcript     string             `json:"transcript"`
	TranscriptInfo transcriptInfo     `json:"transcript_info"`
}

type transcribeResponse struct {
	Text            string  `json:"text"`
	Language        string  `json:"language"`
	DurationSeconds float64 `json:"duration_seconds"`
	WordCount       int     `json:"word_count"`
}

func (c *scoringClient) ScoreWriting(ctx context.Context, prompt, essay string) (*RawScore, error) {
	if len(strings.TrimSpace(essay)) < c.cfg.MinWritingLength {
		return nil, &ValidationError{Msg: fmt.Sprintf("essay must be at least %d characters", c.cfg.MinWritingLength)}
	}

	var resp writingScoreResponse
	err := c.postJSON(ctx, "score writing", "/api/writing/score", c.cfg.WritingTimeout,
		writingScoreRequest{Prompt: prompt, Essay: essay}, &resp)
	if err != nil {
		return nil, err
	}

	return &RawScore{
		Skill:        model.SkillWriting,
		Band:         c.converter.ClampBand(resp.OverallBand),
		Confidence:   resp.Confidence,
		SubScores:    resp.SubScores,
		Criteria:     resp.Feedback,
		Feedback:     flattenCriteria(resp.Feedback),
		Strengths:    resp.Strengths,
		Improvements: resp.Improvements,
		Suggestions:  resp.Suggestions,
	}, nil
}

func (c *scoringClient) ScoreSpeakingText(ctx context.Context, transcript string) (*RawScore, error) {
	if len(strings.TrimSpace(transcript)) < c.cfg.MinTranscriptLength {
		return nil, &ValidationError{Msg: fmt.Sprintf("transcript must be at least %d characters", c.cfg.MinTranscriptLength)}
	}

	var resp speakingScoreResponse
	err := c.postJSON(ctx, "score speaking", "/api/speaking/score-text", c.cfg.SpeakingTimeout,
		speakingTextRequest{AnswerText: transcript}, &resp)
	if err != nil {
		return nil, err
	}
	return c.normalizeSpeaking(&resp), nil
}

func (c *scoringClient) ScoreSpeakingAudio(ctx context.Context, audio AudioSubmission) (*RawScore, error) {
	if err := c.validateAudio(audio); err != nil {
		return nil, err
	}

	var resp speakingScoreResponse
	err := c.postMultipart(ctx, "score speaking audio", "/api/speaking/score-audio", c.cfg.SpeakingTimeout, audio, &resp)
	if err != nil {
		return nil, err
	}
	return c.normalizeSpeaking(&resp), nil
}

func (c *scoringClient) Transcribe(ctx context.Context, audio AudioSubmission) (*Transcript, error) {
	if err := c.validateAudio(audio); err != nil {
		return nil, err
	}

	var resp transcribeResponse
	err := c.postMultipart(ctx, "transcribe", "/api/transcribe", c.cfg.SpeakingTimeout, audio, &resp)
	if err != nil {
		return nil, err
	}
	return &Transcript{
		Text:      resp.Text,
		Language:  resp.Language,
		Duration:  resp.DurationSeconds,
		WordCount: resp.WordCount,
	}, nil
}

// normalizeSpeaking converts a speaking response into a RawScore. When the
// model answered in CEFR space the client's own table decides the band; the
// model's approximate band is only used when no CEFR level is present.
func (c *scoringClient) normalizeSpeaking(resp *speakingScoreResponse) *RawScore {
	raw := &RawScore{
		Skill:        model.SkillSpeaking,
		SubScores:    resp.SubScores,
		Criteria:     resp.Feedback,
		Feedback:     flattenCriteria(resp.Feedback),
		Strengths:    resp.Strengths,
		Improvements: resp.Improvements,
		Suggestions:  resp.Suggestions,
		Confidence:   resp.TranscriptInfo.Confidence,
	}
	if resp.CEFRLevel != "" {
		level := resp.CEFRLevel
		raw.CEFRLevel = &level
		raw.Band, raw.CEFRFallback = c.converter.CEFRToBand(level)
	} else {
		raw.Band = c.converter.ClampBand(resp.ApproxBand)
	}
	if resp.Transcript != "" {
		transcript := resp.Transcript
		raw.Transcript = &transcript
	}
	return raw
}

func (c *scoringClient) validateAudio(audio AudioSubmission) error {
	if len(audio.Data) == 0 {
		return &ValidationError{Msg: "audio submission is empty"}
	}
	if c.cfg.AudioMaxBytes > 0 && int64(len(audio.Data)) > c.cfg.AudioMaxBytes {
		return &ValidationError{Msg: fmt.Sprintf("audio exceeds maximum size of %d bytes", c.cfg.AudioMaxBytes)}
	}
	if audio.Duration > 0 && c.cfg.AudioMaxDuration > 0 && audio.Duration > c.cfg.AudioMaxDuration {
		return &ValidationError{Msg: fmt.Sprintf("audio exceeds maximum duration of %s", c.cfg.AudioMaxDuration)}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(audio.Filename), "."))
	for _, format := range c.cfg.AudioFormats {
		if ext == format {
			return nil
		}
	}
	return &ValidationError{Msg: fmt.Sprintf("unsupported audio format %q", ext)}
}

func (c *scoringClient) postJSON(ctx context.Context, op, path string, timeout time.Duration, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}
	return c.doWithRetry(ctx, op, func(reqCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, timeout, out)
}

func (c *scoringClient) postMultipart(ctx context.Context, op, path string, timeout time.Duration, audio AudioSubmission, out interface{}) error {
	endpoint := c.baseURL + path
	if audio.Language != "" {
		endpoint += "?language=" + url.QueryEscape(audio.Language)
	}
	return c.doWithRetry(ctx, op, func(reqCtx context.Context) (*http.Request, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("audio", audio.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(audio.Data); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}, timeout, out)
}

// doWithRetry runs one scoring call with the per-skill timeout per try,
// retrying transient failures with a fixed delay. Validation (4xx) failures
// surface immediately.
func (c *scoringClient) doWithRetry(ctx context.Context, op string, build func(context.Context) (*http.Request, error), timeout time.Duration, out interface{}) error {
	var lastErr error
	for try := 0; try <= c.cfg.RetryMax; try++ {
		if try > 0 {
			log.Warn().Str("op", op).Int("try", try+1).Err(lastErr).Msg("Retrying scoring call")
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return &TransientError{Op: op, Err: ctx.Err()}
			}
		}

		err := c.doOnce(ctx, op, build, timeout, out)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *scoringClient) doOnce(ctx context.Context, op string, build func(context.Context) (*http.Request, error), timeout time.Duration, out interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := build(reqCtx)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &TimeoutError{Op: op, Err: err}
		}
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ValidationError{Msg: fmt.Sprintf("%s rejected: %s", op, readErrorDetail(resp.Body, resp.StatusCode))}
	default:
		return &TransientError{Op: op, Err: fmt.Errorf("scoring service returned %d", resp.StatusCode)}
	}
}

func readErrorDetail(body io.Reader, status int) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(raw))
}

// flattenCriteria joins per-criterion feedback into one readable text block,
// in stable key order.
func flattenCriteria(criteria map[string]string) string {
	if len(criteria) == 0 {
		return ""
	}
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(criteria[k])
	}
	return b.String()
}

// FetchAudioData pulls a speaking recording from its media URL so a queued
// job can hand the bytes to the scoring service.
func FetchAudioData(ctx context.Context, mediaURL string) ([]byte, string, error) {
	if mediaURL == "" {
		return nil, "", &ValidationError{Msg: "media URL is empty"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", &ValidationError{Msg: fmt.Sprintf("invalid media URL %q", mediaURL)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", &TransientError{Op: "fetch audio", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &TransientError{Op: "fetch audio", Err: fmt.Errorf("media store returned %d for %s", resp.StatusCode, mediaURL)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &TransientError{Op: "fetch audio", Err: err}
	}
	filename := filepath.Base(mediaURL)
	if idx := strings.IndexAny(filename, "?#"); idx >= 0 {
		filename = filename[:idx]
	}
	return data, filename, nil
}
