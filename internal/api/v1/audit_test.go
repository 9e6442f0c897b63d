package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/clinaudit/internal/api/v1"
	"github.com/gosuda/clinaudit/internal/audit"
	"github.com/gosuda/clinaudit/internal/domain"
	"github.com/gosuda/clinaudit/internal/store/memory"
)

var (
	rangeFrom = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
)

const rangeQuery = "from=2024-06-01T00:00:00Z&to=2024-06-30T23:59:59Z"

// ---------------------------------------------------------------------------
// TestListAuditEvents
// ---------------------------------------------------------------------------

func TestListAuditEvents(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		finder := &mockFinder{
			findEventsFunc: func(_ context.Context, tid uuid.UUID, q audit.EventQuery) (*audit.EventPage, error) {
				assert.Equal(t, tenantID, tid)
				require.NotNil(t, q.From)
				require.NotNil(t, q.To)
				assert.True(t, rangeFrom.Equal(*q.From))
				assert.True(t, rangeTo.Equal(*q.To))
				assert.Equal(t, "user-1", q.ActorID)
				assert.Equal(t, domain.ActionDocFinalize, q.ActionType)
				assert.Equal(t, 2, q.Page)
				assert.Equal(t, 10, q.Limit)

				return &audit.EventPage{
					Items: []*domain.AuditEvent{{ActionType: domain.ActionDocFinalize, EventHash: "abc"}},
					Total: 11,
					Page:  2,
					Limit: 10,
				}, nil
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Query: finder})

		resp := api.GetCtx(tenantCtx(tenantID),
			"/audit/events?"+rangeQuery+"&actor_id=user-1&action_type=DOC_FINALIZE&page=2&limit=10")
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Items []map[string]any `json:"items"`
			Total int64            `json:"total"`
			Page  int              `json:"page"`
			Limit int              `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Items, 1)
		assert.Equal(t, "DOC_FINALIZE", body.Items[0]["actionType"])
		assert.Equal(t, "abc", body.Items[0]["hashEvento"])
		assert.Equal(t, int64(11), body.Total)
		assert.Equal(t, 2, body.Page)
		assert.Equal(t, 10, body.Limit)
	})

	t.Run("no_filters_passes_nil_bounds", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		finder := &mockFinder{
			findEventsFunc: func(_ context.Context, _ uuid.UUID, q audit.EventQuery) (*audit.EventPage, error) {
				assert.Nil(t, q.From)
				assert.Nil(t, q.To)
				assert.Empty(t, q.ActionType)
				return &audit.EventPage{Items: []*domain.AuditEvent{}, Page: 1, Limit: audit.DefaultPageLimit}, nil
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Query: finder})

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/events")
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("unknown_action_type", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAuditRoutes(api, v1.AuditServices{Query: &mockFinder{}})

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/events?action_type=DROP_TABLE")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.Body.String(), "DOC_FINALIZE")
	})

	t.Run("invalid_range", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		finder := &mockFinder{
			findEventsFunc: func(context.Context, uuid.UUID, audit.EventQuery) (*audit.EventPage, error) {
				return nil, audit.ErrInvalidTimeRange
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Query: finder})

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/events?from=2024-07-01T00:00:00Z&to=2024-06-01T00:00:00Z")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("store_error", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		finder := &mockFinder{
			findEventsFunc: func(context.Context, uuid.UUID, audit.EventQuery) (*audit.EventPage, error) {
				return nil, errors.New("db connection refused")
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Query: finder})

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/events")
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("missing_tenant", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAuditRoutes(api, v1.AuditServices{Query: &mockFinder{}})

		resp := api.Get("/audit/events")
		assert.Equal(t, http.StatusForbidden, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// TestExportAuditEvents
// ---------------------------------------------------------------------------

func TestExportAuditEvents(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	userID := uuid.New()

	t.Run("records_then_exports", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		recorder := &mockRecorder{}
		exporter := &mockExporter{
			exportEventsFunc: func(_ context.Context, tid uuid.UUID, from, to time.Time, format audit.Format) ([]byte, error) {
				require.Len(t, recorder.recorded, 1, "export must be recorded before rendering")
				assert.Equal(t, tenantID, tid)
				assert.True(t, rangeFrom.Equal(from))
				assert.True(t, rangeTo.Equal(to))
				assert.Equal(t, audit.FormatCSV, format)
				return []byte(audit.CSVHeader + "\n"), nil
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Exporter: exporter, Recorder: recorder})

		resp := api.GetCtx(auditorCtx(tenantID, userID), "/audit/export?"+rangeQuery+"&format=csv")
		require.Equal(t, http.StatusOK, resp.Code)

		assert.Equal(t, audit.CSVHeader+"\n", resp.Body.String())
		assert.Equal(t, audit.FormatCSV.ContentType(), resp.Header().Get("Content-Type"))
		assert.Equal(t,
			`attachment; filename="audit-`+tenantID.String()+`-20240601T000000Z-20240630T235959Z.csv"`,
			resp.Header().Get("Content-Disposition"))

		in := recorder.recorded[0]
		assert.Equal(t, domain.ActionAuditExportDownload, in.ActionType)
		assert.Equal(t, domain.ClassHardFail, in.Class)
		require.NotNil(t, in.TenantID)
		assert.Equal(t, tenantID, *in.TenantID)
		require.NotNil(t, in.ActorID)
		assert.Equal(t, userID.String(), *in.ActorID)
		require.NotNil(t, in.ResourceType)
		assert.Equal(t, "audit_export", *in.ResourceType)
		assert.Equal(t, map[string]any{
			"from":   "2024-06-01T00:00:00.000Z",
			"to":     "2024-06-30T23:59:59.000Z",
			"format": "csv",
		}, in.Payload)
	})

	t.Run("defaults_to_json", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		exporter := &mockExporter{
			exportEventsFunc: func(_ context.Context, _ uuid.UUID, _, _ time.Time, format audit.Format) ([]byte, error) {
				assert.Equal(t, audit.FormatJSON, format)
				return []byte("[]"), nil
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Exporter: exporter, Recorder: &mockRecorder{}})

		resp := api.GetCtx(auditorCtx(tenantID, userID), "/audit/export?"+rangeQuery)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "[]", resp.Body.String())
	})

	t.Run("record_failure_blocks_export", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		recorder := &mockRecorder{
			recordFunc: func(context.Context, audit.RecordInput) error {
				return errors.New("audit store unavailable")
			},
		}
		exporter := &mockExporter{
			exportEventsFunc: func(context.Context, uuid.UUID, time.Time, time.Time, audit.Format) ([]byte, error) {
				t.Error("export must not run when the download could not be recorded")
				return nil, nil
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Exporter: exporter, Recorder: recorder})

		resp := api.GetCtx(auditorCtx(tenantID, userID), "/audit/export?"+rangeQuery+"&format=json")
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("unsupported_format", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		recorder := &mockRecorder{}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Exporter: &mockExporter{}, Recorder: recorder})

		resp := api.GetCtx(auditorCtx(tenantID, userID), "/audit/export?"+rangeQuery+"&format=xml")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Empty(t, recorder.recorded)
	})

	t.Run("invalid_range", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		recorder := &mockRecorder{}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Exporter: &mockExporter{}, Recorder: recorder})

		resp := api.GetCtx(auditorCtx(tenantID, userID), "/audit/export?from=2024-07-01T00:00:00Z&to=2024-06-01T00:00:00Z")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Empty(t, recorder.recorded)
	})

	t.Run("missing_range", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAuditRoutes(api, v1.AuditServices{Exporter: &mockExporter{}, Recorder: &mockRecorder{}})

		resp := api.GetCtx(auditorCtx(tenantID, userID), "/audit/export?format=csv")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("invalid_input_from_services_is_400", func(t *testing.T) {
		t.Parallel()

		for name, svc := range map[string]v1.AuditServices{
			"recorder": {
				Exporter: &mockExporter{},
				Recorder: &mockRecorder{
					recordFunc: func(context.Context, audit.RecordInput) error {
						return fmt.Errorf("audit.Recorder.Record: %w", audit.ErrInvalidPayload)
					},
				},
			},
			"exporter": {
				Exporter: &mockExporter{
					exportEventsFunc: func(context.Context, uuid.UUID, time.Time, time.Time, audit.Format) ([]byte, error) {
						return nil, fmt.Errorf("audit.Exporter.ExportEvents: %w", audit.ErrUnsupportedFormat)
					},
				},
				Recorder: &mockRecorder{},
			},
		} {
			_, api := humatest.New(t)
			v1.RegisterAuditRoutes(api, svc)

			resp := api.GetCtx(auditorCtx(tenantID, userID), "/audit/export?"+rangeQuery)
			assert.Equal(t, http.StatusBadRequest, resp.Code, name)
		}
	})

	t.Run("export_error", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		exporter := &mockExporter{
			exportEventsFunc: func(context.Context, uuid.UUID, time.Time, time.Time, audit.Format) ([]byte, error) {
				return nil, errors.New("db timeout")
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Exporter: exporter, Recorder: &mockRecorder{}})

		resp := api.GetCtx(auditorCtx(tenantID, userID), "/audit/export?"+rangeQuery)
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}

// TestExportAuditEvents_RecordsIntoTrail runs the route against the real
// engines: the download event lands in the trail it exports.
func TestExportAuditEvents_RecordsIntoTrail(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	store := memory.New()
	recorder := audit.NewRecorder(store.Events(), store.Outbox(),
		audit.WithClock(func() time.Time { return rangeFrom.Add(time.Hour) }),
	)

	_, api := humatest.New(t)
	v1.RegisterAuditRoutes(api, v1.AuditServices{
		Exporter: audit.NewExporter(store.Events()),
		Recorder: recorder,
		Verifier: audit.NewVerifier(store.Events()),
	})

	resp := api.GetCtx(auditorCtx(tenantID, uuid.New()), "/audit/export?"+rangeQuery+"&format=json")
	require.Equal(t, http.StatusOK, resp.Code)

	var exported []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exported))
	require.Len(t, exported, 1)
	assert.Equal(t, "AUDIT_EXPORT_DOWNLOAD", exported[0]["actionType"])
	assert.Nil(t, exported[0]["hashEventoAnterior"])

	resp = api.GetCtx(auditorCtx(tenantID, uuid.New()), "/audit/verify?"+rangeQuery)
	require.Equal(t, http.StatusOK, resp.Code)

	var result audit.VerifyResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.Checked)
}

// ---------------------------------------------------------------------------
// TestVerifyAuditChain
// ---------------------------------------------------------------------------

func TestVerifyAuditChain(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()

	t.Run("reports_discrepancies", func(t *testing.T) {
		t.Parallel()

		actual := "ffff"
		_, api := humatest.New(t)
		verifier := &mockVerifier{
			verifyExportFunc: func(_ context.Context, tid uuid.UUID, from, to time.Time) (*audit.VerifyResult, error) {
				assert.Equal(t, tenantID, tid)
				assert.True(t, rangeFrom.Equal(from))
				assert.True(t, rangeTo.Equal(to))
				return &audit.VerifyResult{
					Valid:   false,
					Errors:  []audit.Discrepancy{{Index: 2, ExpectedHash: "aaaa", ActualHash: &actual}},
					Checked: 3,
				}, nil
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Verifier: verifier})

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/verify?"+rangeQuery)
		require.Equal(t, http.StatusOK, resp.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, false, body["valid"])
		assert.InDelta(t, 3, body["checked"], 0)
		errs, ok := body["errors"].([]any)
		require.True(t, ok)
		require.Len(t, errs, 1)
		first, ok := errs[0].(map[string]any)
		require.True(t, ok)
		assert.InDelta(t, 2, first["index"], 0)
		assert.Equal(t, "aaaa", first["expectedHash"])
		assert.Equal(t, "ffff", first["actualHash"])
	})

	t.Run("valid_chain_omits_errors", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		verifier := &mockVerifier{
			verifyExportFunc: func(context.Context, uuid.UUID, time.Time, time.Time) (*audit.VerifyResult, error) {
				return &audit.VerifyResult{Valid: true, Checked: 0}, nil
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Verifier: verifier})

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/verify?"+rangeQuery)
		require.Equal(t, http.StatusOK, resp.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, true, body["valid"])
		assert.NotContains(t, body, "errors")
	})

	t.Run("invalid_range", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		verifier := &mockVerifier{
			verifyExportFunc: func(context.Context, uuid.UUID, time.Time, time.Time) (*audit.VerifyResult, error) {
				return nil, audit.ErrInvalidTimeRange
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Verifier: verifier})

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/verify?from=2024-07-01T00:00:00Z&to=2024-06-01T00:00:00Z")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("store_error", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		verifier := &mockVerifier{
			verifyExportFunc: func(context.Context, uuid.UUID, time.Time, time.Time) (*audit.VerifyResult, error) {
				return nil, errors.New("db connection refused")
			},
		}
		v1.RegisterAuditRoutes(api, v1.AuditServices{Verifier: verifier})

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/verify?"+rangeQuery)
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// TestListAuditOutbox
// ---------------------------------------------------------------------------

func TestListAuditOutbox(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		outbox := &mockOutbox{
			listPendingFunc: func(_ context.Context, limit int) ([]*domain.AuditOutboxEntry, error) {
				assert.Equal(t, 25, limit)
				return []*domain.AuditOutboxEntry{{
					ID:           uuid.New(),
					TenantID:     &tenantID,
					ActionType:   domain.ActionLoginSuccess,
					EventClass:   domain.ClassSoftFail,
					ErrorMessage: "db timeout",
				}}, nil
			},
		}
		v1.RegisterOutboxRoutes(api, outbox)

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/outbox?limit=25")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body, 1)
		assert.Equal(t, "LOGIN_SUCCESS", body[0]["actionType"])
		assert.Equal(t, "CLASS_2_SOFT_FAIL", body[0]["eventClass"])
		assert.Equal(t, "db timeout", body[0]["errorMessage"])
	})

	t.Run("default_limit_and_empty", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		outbox := &mockOutbox{
			listPendingFunc: func(_ context.Context, limit int) ([]*domain.AuditOutboxEntry, error) {
				assert.Equal(t, 100, limit)
				return nil, nil
			},
		}
		v1.RegisterOutboxRoutes(api, outbox)

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/outbox")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, "[]", resp.Body.String())
	})

	t.Run("limit_out_of_bounds", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterOutboxRoutes(api, &mockOutbox{})

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/outbox?limit=10000")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("store_error", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		outbox := &mockOutbox{
			listPendingFunc: func(context.Context, int) ([]*domain.AuditOutboxEntry, error) {
				return nil, errors.New("db connection refused")
			},
		}
		v1.RegisterOutboxRoutes(api, outbox)

		resp := api.GetCtx(tenantCtx(tenantID), "/audit/outbox")
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}
