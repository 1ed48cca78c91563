package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/scribed/audio"
	"github.com/skillsenselab/scribed/capability"
	"github.com/skillsenselab/scribed/diarization"
	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/job"
	"github.com/skillsenselab/scribed/transcription"
	"github.com/skillsenselab/scribed/translation"
)

type fakeScheduler struct {
	submitted []string
	canceled  []string
	store     *job.Store
}

func (f *fakeScheduler) Submit(id string) error {
	f.submitted = append(f.submitted, id)
	return nil
}

func (f *fakeScheduler) Cancel(id string) error {
	f.canceled = append(f.canceled, id)
	if err := f.store.Start(id); err != nil {
		return err
	}
	return f.store.Fail(id, errors.Canceled())
}

type nullASR struct{}

func (nullASR) Name() string { return "null-asr" }

func (nullASR) IsAvailable(_ context.Context) bool { return true }

func (nullASR) Transcribe(_ context.Context, _ transcription.Request) (*transcription.Response, error) {
	return &transcription.Response{}, nil
}

type nullDiar struct{}

func (nullDiar) Name() string { return "null-diar" }

func (nullDiar) IsAvailable(_ context.Context) bool { return true }

func (nullDiar) Diarize(_ context.Context, _ diarization.Request) (*diarization.Response, error) {
	return &diarization.Response{}, nil
}

type echoTranslator struct{}

func (echoTranslator) Name() string { return "echo" }

func (echoTranslator) IsAvailable(_ context.Context) bool { return true }

func (echoTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	return "[" + target + "] " + text, nil
}

type serverFixture struct {
	engine *gin.Engine
	store  *job.Store
	sched  *fakeScheduler
	dir    string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := job.NewStore(job.NewHub())
	sched := &fakeScheduler{store: store}
	dir := t.TempDir()

	var cfg audio.Config
	cfg.ApplyDefaults()

	h := NewHandler(HandlerDeps{
		Store:        store,
		Reporter:     job.NewReporter(store),
		Scheduler:    sched,
		AudioConfig:  cfg,
		UploadDir:    dir,
		Models:       []string{"tiny", "base", "small"},
		DefaultModel: "base",
		ASR: capability.NewRegistry[transcription.Provider]("transcription",
			func(ctx context.Context, key string) (transcription.Provider, error) { return nullASR{}, nil }, false),
		Diarization: capability.NewRegistry[diarization.Provider]("diarization",
			func(ctx context.Context, key string) (diarization.Provider, error) { return nullDiar{}, nil }, false),
		Translator: capability.NewRegistry[translation.Provider]("translation",
			func(ctx context.Context, key string) (translation.Provider, error) { return echoTranslator{}, nil }, false),
	})

	engine := gin.New()
	h.Register(engine)
	return &serverFixture{engine: engine, store: store, sched: sched, dir: dir}
}

func (fx *serverFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	fx.engine.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte("fake audio bytes"))
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe/file", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("bad envelope: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("bad data payload: %v (%s)", err, envelope.Data)
	}
}

func TestSubmitAcceptsUpload(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(t, uploadRequest(t, "meeting.mp3", map[string]string{
		"model_size":         "small",
		"enable_diarization": "true",
	}))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp submitResponse
	decodeData(t, rec, &resp)
	if resp.JobID == "" || resp.Status != "pending" {
		t.Fatalf("response = %+v", resp)
	}
	if len(fx.sched.submitted) != 1 || fx.sched.submitted[0] != resp.JobID {
		t.Fatalf("scheduler submissions = %v", fx.sched.submitted)
	}

	j, err := fx.store.Get(resp.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if j.Options.ModelSize != "small" || !j.Options.EnableDiarization {
		t.Fatalf("options = %+v", j.Options)
	}
	// The upload is stored under a generated name, original extension kept.
	if _, err := os.Stat(j.SourcePath); err != nil {
		t.Fatalf("upload not saved: %v", err)
	}
	if !strings.HasSuffix(j.SourcePath, ".mp3") {
		t.Fatalf("source path = %s", j.SourcePath)
	}
}

func TestSubmitRejectsUnsupportedFormatBeforeJobCreation(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(t, uploadRequest(t, "notes.pdf", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "VALIDATION_ERROR") {
		t.Fatalf("body = %s", rec.Body.String())
	}
	// No job id was handed out and nothing was scheduled.
	if len(fx.sched.submitted) != 0 {
		t.Fatalf("submissions = %v", fx.sched.submitted)
	}
	if got := fx.store.Processing(); len(got) != 0 {
		t.Fatalf("jobs = %v", got)
	}
}

func TestSubmitRejectsMissingFile(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(t, uploadRequest(t, "", map[string]string{"model_size": "base"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSubmitRejectsBadOptions(t *testing.T) {
	fx := newServerFixture(t)
	cases := []map[string]string{
		{"model_size": "enormous"},
		{"num_speakers": "-1"},
		{"num_speakers": "3", "min_speakers": "2"},
		{"min_speakers": "4", "max_speakers": "2"},
	}
	for _, fields := range cases {
		rec := fx.do(t, uploadRequest(t, "audio.wav", fields))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("fields %v: status = %d, body = %s", fields, rec.Code, rec.Body.String())
		}
	}
	if len(fx.sched.submitted) != 0 {
		t.Fatalf("submissions = %v", fx.sched.submitted)
	}
}

func TestStatusEndpoint(t *testing.T) {
	fx := newServerFixture(t)
	j := fx.store.Create(job.Options{ModelSize: "base"}, "/tmp/x.wav")

	rec := fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transcribe/job/"+j.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got job.Job
	decodeData(t, rec, &got)
	if got.ID != j.ID || got.Status != job.StatusPending {
		t.Fatalf("job = %+v", got)
	}

	rec = fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transcribe/job/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d", rec.Code)
	}
}

func TestDeleteCancelsLiveJob(t *testing.T) {
	fx := newServerFixture(t)
	j := fx.store.Create(job.Options{}, "/tmp/x.wav")

	rec := fx.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/transcribe/job/"+j.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(fx.sched.canceled) != 1 {
		t.Fatalf("cancellations = %v", fx.sched.canceled)
	}
}

func TestDeleteRemovesTerminalJob(t *testing.T) {
	fx := newServerFixture(t)
	j := fx.store.Create(job.Options{}, "/tmp/x.wav")
	fx.store.Start(j.ID)
	fx.store.Complete(j.ID, &transcription.Result{})

	rec := fx.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/transcribe/job/"+j.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, err := fx.store.Get(j.ID); errors.CodeOf(err) != errors.ErrCodeJobNotFound {
		t.Fatalf("job still present: %v", err)
	}
}

func completedJob(fx *serverFixture) job.Job {
	j := fx.store.Create(job.Options{}, "/tmp/x.wav")
	fx.store.Start(j.ID)
	fx.store.Complete(j.ID, &transcription.Result{
		Text:     "hello world",
		Language: "en",
		Duration: 4,
		Segments: []transcription.Segment{
			{ID: 0, Text: "hello world", Start: 0.5, End: 3.5, Confidence: 0.9, Speaker: "SPEAKER_00"},
		},
	})
	j, _ = fx.store.Get(j.ID)
	return j
}

func TestExportFormats(t *testing.T) {
	fx := newServerFixture(t)
	j := completedJob(fx)

	rec := fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transcribe/job/"+j.ID+"/export?format=txt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("txt status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "[SPEAKER_00]: hello world" {
		t.Fatalf("txt = %q", got)
	}

	rec = fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transcribe/job/"+j.ID+"/export?format=srt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("srt status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "00:00:00,500 --> 00:00:03,500") {
		t.Fatalf("srt = %q", rec.Body.String())
	}

	rec = fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transcribe/job/"+j.ID+"/export?format=json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("json status = %d", rec.Code)
	}
	var decoded transcription.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("json export invalid: %v", err)
	}

	rec = fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transcribe/job/"+j.ID+"/export?format=docx", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad format status = %d", rec.Code)
	}
}

func TestExportRequiresCompletedJob(t *testing.T) {
	fx := newServerFixture(t)
	j := fx.store.Create(job.Options{}, "/tmp/x.wav")

	rec := fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transcribe/job/"+j.ID+"/export?format=txt", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExportTranslates(t *testing.T) {
	fx := newServerFixture(t)
	j := completedJob(fx)

	rec := fx.do(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/transcribe/job/"+j.ID+"/export?format=txt&target_lang=de", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "[SPEAKER_00]: [de] hello world" {
		t.Fatalf("translated txt = %q", got)
	}

	// The stored result is untouched by a translated export.
	stored, _ := fx.store.Get(j.ID)
	if stored.Result.Text != "hello world" {
		t.Fatalf("stored result mutated: %q", stored.Result.Text)
	}
}

func TestModelsEndpoint(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp modelsResponse
	decodeData(t, rec, &resp)
	if resp.Default != "base" || len(resp.Models) != 3 {
		t.Fatalf("models = %+v", resp)
	}
	for _, m := range resp.Models {
		if m.Loaded {
			t.Fatalf("model %s reported loaded before any job ran", m.Name)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status       string          `json:"status"`
		Capabilities map[string]bool `json:"capabilities"`
	}
	decodeData(t, rec, &resp)
	if resp.Status != "ok" {
		t.Fatalf("health = %+v", resp)
	}
	// Capabilities are reported unavailable until first load; the probe
	// never forces one.
	if resp.Capabilities["transcription"] {
		t.Fatal("transcription reported available before any load")
	}
}

func TestEventsStreamReplaysTerminalJob(t *testing.T) {
	fx := newServerFixture(t)
	j := completedJob(fx)

	rec := fx.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transcribe/job/"+j.ID+"/events", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: status") || !strings.Contains(body, `"completed"`) {
		t.Fatalf("stream = %q", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("stream missing terminator: %q", body)
	}
}
