package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/NeverMind-orz/identity-kit/internal/logger"
)

// DataDogSink forwards audit events to the datadog logs intake.
type DataDogSink struct {
	cfg logger.DataDog
	api *datadogV2.LogsApi
}

// NewDataDogSink creates a sink from the datadog logger config.
func NewDataDogSink(cfg logger.DataDog) *DataDogSink {
	configuration := datadog.NewConfiguration()

	if len(cfg.Servers) > 0 {
		configuration.Servers = cfg.Servers
	}

	return &DataDogSink{
		cfg: cfg,
		api: datadogV2.NewLogsApi(datadog.NewAPIClient(configuration)),
	}
}

// RecordSecurity implements Sink.
func (s *DataDogSink) RecordSecurity(ctx context.Context, event SecurityEvent) error {
	return s.submit(ctx, "security", event)
}

// RecordActivity implements Sink.
func (s *DataDogSink) RecordActivity(ctx context.Context, event ActivityEvent) error {
	return s.submit(ctx, "activity", event)
}

// submit sends one event as a datadog HTTP log item.
func (s *DataDogSink) submit(ctx context.Context, kind string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	ctx = context.WithValue(ctx, datadog.ContextAPIKeys, map[string]datadog.APIKey{
		"apiKeyAuth": {Key: s.cfg.APIKey},
	})

	if s.cfg.Site != "" {
		ctx = context.WithValue(ctx, datadog.ContextServerVariables, map[string]string{
			"site": s.cfg.Site,
		})
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	items := []datadogV2.HTTPLogItem{{
		Ddsource: datadog.PtrString("identity-kit"),
		Ddtags:   datadog.PtrString("kind:" + kind),
		Message:  string(body),
		Service:  datadog.PtrString(s.cfg.ServiceName),
	}}

	if _, _, err := s.api.SubmitLog(ctx, items); err != nil {
		return fmt.Errorf("failed to submit audit event to datadog: %w", err)
	}

	return nil
}
