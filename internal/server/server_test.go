package server

import (
	"bytes"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/iwvelando/reserve-forecast/pkg/optimization"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const twoComponentConfig = `{
	"starting_year": 2025,
	"beginning_reserve_balance": 1000,
	"inflation_rate": 0,
	"investment_return_rate": 0.10,
	"forecast_years": 5,
	"features": {"enable_audit": true}
}`

const twoComponentComponents = `[
	{"id": "roof", "name": "Roof", "category": "Building", "base_cost": 200, "recurring": "Y", "include": "Y", "interval_years": 2},
	{"id": "paint", "name": "Paint", "category": "Exterior", "base_cost": 300, "recurring": "N", "include": "Y", "spend_year": 2027}
]`

type testResponse struct {
	RunID      string                `json:"run_id"`
	Scenario   string                `json:"scenario"`
	Validation struct {
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	} `json:"validation"`
	Schedule []model.ScheduleEvent `json:"schedule"`
	Forecast []model.ForecastYear  `json:"forecast"`
	Summary  *model.Summary        `json:"summary"`
	Audit    *struct {
		Failures int `json:"failures"`
	} `json:"audit"`
	Solve    *optimization.Summary `json:"solve"`
	CSV      string                `json:"csv"`
	Duration string                `json:"duration"`
	Error    string                `json:"error"`
}

func requestBody(config, components, contributions, options string) string {
	return `{"scenario": "baseline", "config": ` + config +
		`, "components": ` + components +
		`, "contributions": ` + contributions +
		`, "options": ` + options + `}`
}

func contributions(amounts ...float64) string {
	rows := make([]map[string]float64, len(amounts))
	for i, amount := range amounts {
		rows[i] = map[string]float64{"year": float64(2025 + i), "amount": amount}
	}
	data, _ := json.Marshal(rows)
	return string(data)
}

func post(t *testing.T, handler http.Handler, path, body string) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var resp testResponse
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return rr, resp
}

func TestHandleForecastSuccess(t *testing.T) {
	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")
	body := requestBody(twoComponentConfig, twoComponentComponents, contributions(500, 100, 300, 100, 500), `{}`)

	rr, resp := post(t, handler, "/api/forecast", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if resp.RunID == "" {
		t.Error("expected run ID in response")
	}
	if resp.Scenario != "baseline" {
		t.Errorf("expected scenario baseline, got %s", resp.Scenario)
	}
	if len(resp.Forecast) != 5 {
		t.Fatalf("expected 5 forecast years, got %d", len(resp.Forecast))
	}
	if math.Abs(resp.Forecast[4].EndingBalance-2350.84) > 0.001 {
		t.Errorf("expected 2029 ending balance 2350.84, got %v", resp.Forecast[4].EndingBalance)
	}
	if resp.Forecast[0].PercentFunded != nil {
		t.Errorf("expected nil 2025 percent funded, got %v", *resp.Forecast[0].PercentFunded)
	}
	if len(resp.Schedule) != 4 {
		t.Errorf("expected 4 schedule items, got %d", len(resp.Schedule))
	}
	if resp.Summary == nil || resp.Summary.ScheduleItems != 4 {
		t.Errorf("unexpected summary %+v", resp.Summary)
	}
	if resp.Audit == nil || resp.Audit.Failures != 0 {
		t.Errorf("expected passing audit, got %+v", resp.Audit)
	}
	if !strings.HasPrefix(resp.CSV, "year,beginning_balance") {
		t.Errorf("expected CSV data in response, got %q", resp.CSV)
	}
	if resp.Solve != nil {
		t.Error("expected no solver result without options.solve")
	}
	if resp.Duration == "" {
		t.Error("expected duration in response")
	}
}

func TestHandleForecastSolve(t *testing.T) {
	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")
	config := `{"starting_year": 2025, "beginning_reserve_balance": 1000, "inflation_rate": 0, "investment_return_rate": 0, "forecast_years": 3}`
	components := `[{"id": "elevator", "name": "Elevator", "base_cost": 2000, "recurring": "N", "include": "Y", "spend_year": 2025}]`
	body := requestBody(config, components, contributions(0, 0, 0), `{"solve": true}`)

	rr, resp := post(t, handler, "/api/forecast", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp.Summary == nil || resp.Summary.NegativeBalanceYears != 3 {
		t.Errorf("expected 3 negative balance years, got %+v", resp.Summary)
	}
	if resp.Solve == nil {
		t.Fatal("expected solver result")
	}
	if !resp.Solve.Converged || resp.Solve.Contribution < 1000 || resp.Solve.Contribution > 1000.01 {
		t.Errorf("unexpected solver result %+v", resp.Solve)
	}
}

func TestHandleForecastValidationErrors(t *testing.T) {
	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")
	body := requestBody(twoComponentConfig, twoComponentComponents, contributions(500, 100, 300, 100), `{}`)

	rr, resp := post(t, handler, "/api/forecast", body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(resp.Validation.Errors) != 1 || resp.Validation.Errors[0] != "Missing contributions for years: 2029" {
		t.Errorf("unexpected validation errors %v", resp.Validation.Errors)
	}
	if resp.Forecast != nil {
		t.Error("expected no forecast for invalid inputs")
	}
}

func TestHandleForecastOversizedHorizon(t *testing.T) {
	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")
	config := strings.Replace(twoComponentConfig, `"forecast_years": 5`, `"forecast_years": 100000000`, 1)
	body := requestBody(config, twoComponentComponents, contributions(500, 100, 300, 100, 500), `{"solve": true}`)

	rr, resp := post(t, handler, "/api/forecast", body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(resp.Validation.Errors) != 1 || resp.Validation.Errors[0] != "forecast_years must be <= 200" {
		t.Errorf("unexpected validation errors %v", resp.Validation.Errors)
	}
	if len(resp.Schedule) != 0 || resp.Solve != nil {
		t.Error("expected no schedule or solve result for an unusable horizon")
	}
}

func TestHandleForecastBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{
			name:    "Malformed JSON",
			body:    `{"config": `,
			status:  http.StatusBadRequest,
			message: "failed to decode request",
		},
		{
			name:    "Missing config",
			body:    `{"components": []}`,
			status:  http.StatusBadRequest,
			message: "missing config",
		},
		{
			name:    "Missing required key",
			body:    requestBody(`{"beginning_reserve_balance": 1, "inflation_rate": 0, "investment_return_rate": 0}`, `[]`, `[]`, `{}`),
			status:  http.StatusBadRequest,
			message: "Missing required input: starting_year",
		},
		{
			name:    "Invalid timing",
			body:    requestBody(`{"starting_year": 2025, "beginning_reserve_balance": 1, "inflation_rate": 0, "investment_return_rate": 0, "spend_inflation_timing": "later"}`, `[]`, `[]`, `{}`),
			status:  http.StatusBadRequest,
			message: "spend_inflation_timing must be one of",
		},
		{
			name:    "Invalid scenario name",
			body:    `{"scenario": "../etc", "config": {}}`,
			status:  http.StatusBadRequest,
			message: "invalid scenario name",
		},
	}

	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := post(t, handler, "/api/forecast", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if !strings.Contains(resp.Error, tt.message) {
				t.Errorf("expected error containing %q, got %q", tt.message, resp.Error)
			}
		})
	}
}

func TestHandleForecastTooLarge(t *testing.T) {
	handler := NewHandler(zap.NewNop(), 32, "")
	body := requestBody(twoComponentConfig, twoComponentComponents, contributions(500, 100, 300, 100, 500), `{}`)

	rr, _ := post(t, handler, "/api/forecast", body)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleForecastMethodNotAllowed(t *testing.T) {
	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")
	for _, path := range []string{"/api/forecast", "/api/forecast/upload", "/api/workbook"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: expected status 405, got %d", path, rr.Code)
		}
	}
}

func TestHandleUpload(t *testing.T) {
	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	files := map[string]string{
		"inputs":        "starting_year: 2025\nbeginning_reserve_balance: 1000\ninflation_rate: 0\ninvestment_return_rate: 0.10\nforecast_years: 5\n",
		"components":    "id,name,category,base_cost,spend_year,recurring,interval_years,include\nroof,Roof,Building,200,,Y,2,Y\npaint,Paint,Exterior,300,2027,N,,Y\n",
		"contributions": "year,contribution\n2025,500\n2026,100\n2027,300\n2028,100\n2029,500\n",
	}
	for field, content := range files {
		part, err := writer.CreateFormFile(field, field)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write form data: %v", err)
		}
	}
	if err := writer.WriteField("scenario", "baseline"); err != nil {
		t.Fatalf("failed to write scenario field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/forecast/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp testResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Forecast) != 5 || math.Abs(resp.Forecast[2].EndingBalance-1604) > 0.001 {
		t.Errorf("unexpected forecast %+v", resp.Forecast)
	}
}

func TestHandleUploadMissingFile(t *testing.T) {
	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("scenario", "baseline"); err != nil {
		t.Fatalf("failed to write scenario field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/forecast/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "missing inputs file") {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestHandleWorkbook(t *testing.T) {
	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")
	body := requestBody(twoComponentConfig, twoComponentComponents, contributions(500, 100, 300, 100, 500), `{}`)

	rr, _ := post(t, handler, "/api/workbook", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != xlsxContentType {
		t.Errorf("unexpected content type %s", got)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "Reserve_Forecast_baseline.xlsx") {
		t.Errorf("unexpected content disposition %s", rr.Header().Get("Content-Disposition"))
	}

	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()
	value, err := f.GetCellValue("Forecast", "F2", excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if value != "1400" {
		t.Errorf("expected Forecast!F2 = 1400, got %s", value)
	}
}

func TestHandleWorkbookValidationErrors(t *testing.T) {
	handler := NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "")
	body := requestBody(twoComponentConfig, twoComponentComponents, contributions(500), `{}`)

	rr, resp := post(t, handler, "/api/workbook", body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	if len(resp.Validation.Errors) == 0 {
		t.Error("expected validation errors")
	}
}

func TestHandleVersion(t *testing.T) {
	tests := []struct {
		version  string
		expected string
	}{
		{"1.2.3", "1.2.3"},
		{"  ", "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			handler := NewHandler(nil, 0, tt.version)
			req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rr.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["version"] != tt.expected {
				t.Errorf("expected version %s, got %s", tt.expected, resp["version"])
			}
		})
	}
}
