package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/iwvelando/reserve-forecast/internal/audit"
	"github.com/iwvelando/reserve-forecast/internal/config"
	"github.com/iwvelando/reserve-forecast/internal/loader"
	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/internal/optimizer"
	"github.com/iwvelando/reserve-forecast/internal/scenario"
	"github.com/iwvelando/reserve-forecast/internal/validate"
	"github.com/iwvelando/reserve-forecast/internal/workbook"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/iwvelando/reserve-forecast/pkg/optimization"
	"github.com/iwvelando/reserve-forecast/pkg/output"
	"github.com/iwvelando/reserve-forecast/pkg/validation"
	"go.uber.org/zap"
)

const (
	defaultScenario = "api"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var requiredConfigKeys = []string{
	"starting_year",
	"beginning_reserve_balance",
	"inflation_rate",
	"investment_return_rate",
}

type handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	version       string
}

// NewHandler constructs the HTTP handler that serves the forecast API.
func NewHandler(logger *zap.Logger, maxUploadSize int64, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	if maxUploadSize <= 0 {
		maxUploadSize = constants.DefaultMaxUploadSizeBytes
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{logger: logger, maxUploadSize: maxUploadSize, version: trimmedVersion}

	mux := http.NewServeMux()

	// Forecast from a JSON document
	mux.HandleFunc("/api/forecast", h.handleForecast)

	// Forecast from uploaded inputs.yaml, components.csv and contributions csv
	mux.HandleFunc("/api/forecast/upload", h.handleUpload)

	// Workbook download for a JSON document
	mux.HandleFunc("/api/workbook", h.handleWorkbook)

	mux.HandleFunc("/api/version", h.handleVersion)

	return mux
}

type forecastRequest struct {
	Scenario      string                  `json:"scenario"`
	Config        json.RawMessage         `json:"config"`
	Components    []model.Component       `json:"components"`
	Contributions []model.ContributionRow `json:"contributions"`
	Options       forecastOptions         `json:"options"`
}

type forecastOptions struct {
	Solve bool     `json:"solve"`
	Floor float64  `json:"floor"`
	Max   *float64 `json:"max,omitempty"`
}

type forecastResponse struct {
	RunID      string                `json:"run_id"`
	Scenario   string                `json:"scenario"`
	Validation validate.Result       `json:"validation"`
	Schedule   []model.ScheduleEvent `json:"schedule"`
	Dropped    []model.DroppedRow    `json:"dropped,omitempty"`
	Forecast   []model.ForecastYear  `json:"forecast,omitempty"`
	Summary    *model.Summary        `json:"summary,omitempty"`
	Audit      *audit.Result         `json:"audit,omitempty"`
	Solve      *optimization.Summary `json:"solve,omitempty"`
	CSV        string                `json:"csv,omitempty"`
	Duration   string                `json:"duration"`
}

// requestError carries the status a malformed request should be answered with.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string {
	return e.msg
}

func badRequest(format string, args ...interface{}) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (h *handler) handleForecast(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleForecast"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	name, src, opts, err := h.decodeRequest(w, r)
	if err != nil {
		h.respondRequestError(w, err, op)
		return
	}
	h.runForecast(w, name, *src, opts, start, op)
}

func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleUpload"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to parse upload: %v", err), op)
		return
	}

	name := r.FormValue("scenario")
	if name == "" {
		name = defaultScenario
	}
	if err := validation.ValidateScenarioName(name); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	inputs, err := h.readFormFile(r, "inputs")
	if err != nil {
		h.respondRequestError(w, err, op)
		return
	}
	conf, err := config.ReadInputs(bytes.NewReader(inputs))
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	componentsData, err := h.readFormFile(r, "components")
	if err != nil {
		h.respondRequestError(w, err, op)
		return
	}
	components, componentIssues, err := loader.ReadComponents(bytes.NewReader(componentsData), constants.ComponentsFile)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	contributionsData, err := h.readFormFile(r, "contributions")
	if err != nil {
		h.respondRequestError(w, err, op)
		return
	}
	rows, contributionIssues, err := loader.ReadContributions(bytes.NewReader(contributionsData), name+".csv")
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	src := scenario.Sources{
		Config:        *conf,
		Components:    components,
		Contributions: rows,
		Issues:        append(componentIssues, contributionIssues...),
	}
	opts := forecastOptions{Solve: r.FormValue("solve") == "true"}
	h.runForecast(w, name, src, opts, start, op)
}

func (h *handler) handleWorkbook(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleWorkbook"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	name, src, _, err := h.decodeRequest(w, r)
	if err != nil {
		h.respondRequestError(w, err, op)
		return
	}

	run := scenario.Evaluate(h.logger, name, *src)
	if !run.Built() {
		h.writeJSON(w, http.StatusUnprocessableEntity, newResponse(run, start))
		return
	}

	f, err := workbook.Render(run)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to render workbook: %v", err), op)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			h.logger.Warn("failed to close workbook",
				zap.String("op", op),
				zap.Error(closeErr),
			)
		}
	}()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to encode workbook: %v", err), op)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", workbook.FileName(name)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write workbook response",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

// decodeRequest reads a JSON forecast request. Config keys follow inputs.yaml
// and unset keys take the inputs.yaml defaults.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request) (string, *scenario.Sources, forecastOptions, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return "", nil, forecastOptions{}, &requestError{
				status: http.StatusRequestEntityTooLarge,
				msg:    fmt.Sprintf("request exceeds limit of %d bytes", h.maxUploadSize),
			}
		}
		return "", nil, forecastOptions{}, badRequest("failed to read request: %v", err)
	}

	var req forecastRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, forecastOptions{}, badRequest("failed to decode request: %v", err)
	}

	name := req.Scenario
	if name == "" {
		name = defaultScenario
	}
	if err := validation.ValidateScenarioName(name); err != nil {
		return "", nil, forecastOptions{}, badRequest("%v", err)
	}

	conf, err := decodeConfig(req.Config)
	if err != nil {
		return "", nil, forecastOptions{}, err
	}

	// Rows default to their position as if read from a CSV with a header.
	for i := range req.Components {
		if req.Components[i].Row == 0 {
			req.Components[i].Row = i + 2
		}
	}
	for i := range req.Contributions {
		if req.Contributions[i].Row == 0 {
			req.Contributions[i].Row = i + 2
		}
	}

	return name, &scenario.Sources{
		Config:        *conf,
		Components:    req.Components,
		Contributions: req.Contributions,
	}, req.Options, nil
}

func decodeConfig(raw json.RawMessage) (*config.Configuration, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, badRequest("missing config")
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, badRequest("invalid config payload: expected object")
	}
	for _, key := range requiredConfigKeys {
		if _, ok := keys[key]; !ok {
			return nil, badRequest("Missing required input: %s", key)
		}
	}

	conf := config.Default()
	if err := json.Unmarshal(raw, &conf); err != nil {
		return nil, badRequest("failed to decode config: %v", err)
	}
	if _, ok := keys["forecast_years"]; !ok {
		conf.ForecastYears = conf.Features.ForecastYears
	}
	if err := conf.Normalize(); err != nil {
		return nil, badRequest("%v", err)
	}
	return &conf, nil
}

func (h *handler) readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, badRequest("missing %s file", field)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", "server.readFormFile"),
				zap.String("field", field),
				zap.Error(closeErr),
			)
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &requestError{status: http.StatusInternalServerError, msg: fmt.Sprintf("failed to read %s: %v", field, err)}
	}
	return data, nil
}

func (h *handler) runForecast(w http.ResponseWriter, name string, src scenario.Sources, opts forecastOptions, start time.Time, op string) {
	run := scenario.Evaluate(h.logger, name, src)
	resp := newResponse(run, start)
	if !run.Built() {
		h.writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	var csvBuf bytes.Buffer
	if err := output.CsvFormat(&csvBuf, run.Forecast); err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to format forecast: %v", err), op)
		return
	}
	resp.CSV = csvBuf.String()

	if opts.Solve {
		runner, err := optimizer.NewRunner(h.logger, run.Config, run.Components, run.Schedule)
		if err != nil {
			h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
			return
		}
		result, err := runner.Solve(optimizer.Options{Floor: opts.Floor, Max: opts.Max})
		if err != nil {
			h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
			return
		}
		resp.Solve = result
	}

	resp.Duration = time.Since(start).String()
	h.logger.Info("forecast request completed",
		zap.String("op", op),
		zap.String("scenario", name),
		zap.String("run_id", run.ID),
		zap.Int("years", len(run.Forecast)),
		zap.Bool("solve", opts.Solve),
		zap.Duration("duration", time.Since(start)),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func newResponse(run *scenario.Run, start time.Time) forecastResponse {
	events := run.Schedule.Events
	if events == nil {
		events = []model.ScheduleEvent{}
	}
	return forecastResponse{
		RunID:      run.ID,
		Scenario:   run.Scenario,
		Validation: run.Validation,
		Schedule:   events,
		Dropped:    run.Schedule.Dropped,
		Forecast:   run.Forecast,
		Summary:    run.Summary,
		Audit:      run.Audit,
		Duration:   time.Since(start).String(),
	}
}

func (h *handler) respondRequestError(w http.ResponseWriter, err error, op string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		h.respondErrorWithOp(w, reqErr.status, reqErr.msg, op)
		return
	}
	h.respondErrorWithOp(w, http.StatusInternalServerError, err.Error(), op)
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("forecast request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
