package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobforge/huntd/pkg/jobstore"
)

func decode(t *testing.T, line string) Event {
	t.Helper()
	ev, ok := NewDecoder(nil).DecodeLine([]byte(line))
	require.True(t, ok)
	return ev
}

func TestDecodeStageChange(t *testing.T) {
	ev := decode(t, `{"type":"stage_change","stage":"searching","progress":20,"message":"Sammle Jobs..."}`)

	require.Equal(t, KindStageChange, ev.Kind)
	require.NotNil(t, ev.Stage)
	assert.Equal(t, "searching", ev.Stage.Stage)
	assert.Equal(t, float64(20), ev.Stage.Progress)
	assert.Equal(t, "Sammle Jobs...", ev.Stage.Message)
}

func TestDecodeSelectionRequired(t *testing.T) {
	ev := decode(t, `{"type":"user_selection_required","ranked_jobs":[{"id":"1","title":"Gärtner","company":"Grünwerk GmbH","url":"https://example.com/jobs/1"}],"total_found":12,"relevant_count":1}`)

	require.Equal(t, KindSelectionRequired, ev.Kind)
	require.NotNil(t, ev.Selection)
	require.Len(t, ev.Selection.RankedJobs, 1)
	assert.Equal(t, jobstore.ID("1"), ev.Selection.RankedJobs[0].ID)
	assert.Equal(t, 12, ev.Selection.TotalFound)
}

func TestDecodeSelectionRequiredNumericIDs(t *testing.T) {
	// The worker is inconsistent about id types; both must decode.
	ev := decode(t, `{"type":"user_selection_required","ranked_jobs":[{"id":7,"title":"Florist","company":"Blumen AG","url":"https://example.com/jobs/7"}]}`)

	require.Equal(t, KindSelectionRequired, ev.Kind)
	assert.Equal(t, jobstore.ID("7"), ev.Selection.RankedJobs[0].ID)
}

func TestDecodeApprovalRequired(t *testing.T) {
	ev := decode(t, `{"type":"user_approval_required","applications":[{"job_id":3,"company":"Blumen AG","job_title":"Florist","application_text":"Sehr geehrte Damen und Herren,..."}],"count":1}`)

	require.Equal(t, KindApprovalRequired, ev.Kind)
	require.NotNil(t, ev.Approval)
	require.Len(t, ev.Approval.Applications, 1)
	assert.Equal(t, int64(3), ev.Approval.Applications[0].JobID)
}

func TestDecodeFinalResults(t *testing.T) {
	ev := decode(t, `{"type":"final_results","jobs":[{"id":"1","title":"Gärtner","company":"Grünwerk GmbH","url":"https://example.com/jobs/1"}],"message":"fertig","status":"success","approved_count":1}`)

	require.Equal(t, KindFinalResults, ev.Kind)
	require.NotNil(t, ev.Final)
	assert.Equal(t, "success", ev.Final.Status)
	require.Len(t, ev.Final.Jobs, 1)
}

func TestDecodeHeartbeat(t *testing.T) {
	ev := decode(t, `{"type":"heartbeat","timestamp":"2025-01-01T00:00:00Z"}`)
	assert.Equal(t, KindHeartbeat, ev.Kind)
}

func TestDecodeWorkerError(t *testing.T) {
	ev := decode(t, `{"type":"error","message":"Adzuna API rate limited"}`)

	require.Equal(t, KindWorkerError, ev.Kind)
	require.NotNil(t, ev.WorkerErr)
	assert.Equal(t, "Adzuna API rate limited", ev.WorkerErr.Message)
}

func TestDecodeUnknownTypeIsIgnoredNotRaised(t *testing.T) {
	ev := decode(t, `{"type":"profiles_listed","profiles":[]}`)

	assert.Equal(t, KindUnknown, ev.Kind)
	assert.Equal(t, "profiles_listed", ev.RawType)
}

func TestDecodePlainTextBecomesLogLine(t *testing.T) {
	ev := decode(t, "   ⏳ Warte auf Job-Auswahl via HTTP...")

	assert.Equal(t, KindLogLine, ev.Kind)
	assert.Equal(t, "⏳ Warte auf Job-Auswahl via HTTP...", ev.Line)
}

func TestDecodeBrokenJSONBecomesLogLine(t *testing.T) {
	ev := decode(t, `{"type":"stage_change","stage":`)
	assert.Equal(t, KindLogLine, ev.Kind)
}

func TestDecodeNoiseIsDropped(t *testing.T) {
	d := NewDecoder(nil)

	_, ok := d.DecodeLine([]byte("urllib3 v2 only supports OpenSSL 1.1.1+"))
	assert.False(t, ok)

	_, ok = d.DecodeLine([]byte(""))
	assert.False(t, ok)

	_, ok = d.DecodeLine([]byte("   \t  "))
	assert.False(t, ok)
}

func TestDecodeCustomNoiseFilters(t *testing.T) {
	d := NewDecoder(nil)
	d.SetNoiseFilters([]string{"DEBUG"})

	_, ok := d.DecodeLine([]byte("DEBUG poll tick"))
	assert.False(t, ok)

	// Default filters no longer apply once replaced.
	ev, ok := d.DecodeLine([]byte("urllib3 warning"))
	require.True(t, ok)
	assert.Equal(t, KindLogLine, ev.Kind)
}

func TestDecodeOversizedLine(t *testing.T) {
	d := NewDecoder(nil)
	d.SetMaxLineBytes(64)

	ev, ok := d.DecodeLine([]byte(`{"type":"stage_change","message":"` + strings.Repeat("x", 200) + `"}`))
	require.True(t, ok)
	assert.Equal(t, KindLogLine, ev.Kind)
}

func TestDecodeOrderIsCallerDriven(t *testing.T) {
	// The decoder is synchronous and stateless across lines; ordering is
	// whatever the caller feeds it.
	d := NewDecoder(nil)
	first, _ := d.DecodeLine([]byte(`{"type":"stage_change","stage":"a","progress":1,"message":""}`))
	second, _ := d.DecodeLine([]byte(`{"type":"stage_change","stage":"b","progress":2,"message":""}`))

	assert.Equal(t, "a", first.Stage.Stage)
	assert.Equal(t, "b", second.Stage.Stage)
}
