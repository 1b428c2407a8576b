package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/machado-saude/sector-priority/internal/config"
	"github.com/machado-saude/sector-priority/internal/model"
	"github.com/machado-saude/sector-priority/internal/observability"
	"github.com/machado-saude/sector-priority/internal/store"
)

var fixedNow = time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)

func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(fixedNow)
	SetClock(fc)
	t.Cleanup(func() { SetClock(nil) })
	return fc
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const squareGeometry = `{"type":"Polygon","coordinates":[[[-46.5,-21.6],[-46.4,-21.6],[-46.4,-21.5],[-46.5,-21.5],[-46.5,-21.6]]]}`

func sectorFeature(id, pop string) string {
	return `{"type":"Feature","properties":{"CD_SETOR":"` + id + `","D_Pop_Risco":` + pop + `},"geometry":` + squareGeometry + `}`
}

func featureCollection(features ...string) string {
	out := `{"type":"FeatureCollection","features":[`
	for i, f := range features {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out + "]}"
}

func float64Ptr(v float64) *float64 { return &v }

// testConfig writes a three-sector mesh, a case table and a coverage table
// and returns a valid configuration pointing at them.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	sectors := writeFixture(t, dir, "setores.geojson", featureCollection(
		sectorFeature("003", "100"),
		sectorFeature("001", "100"),
		sectorFeature("002", "100"),
	))
	cases := writeFixture(t, dir, "casos.csv",
		"DT_SIN_PRI;NU_IDADE_N;CS_SEXO;CS_GESTANT;FATOR_RISC\n"+
			"2024-01-01;34;F;1;1\n"+
			"2024-01-03;61;M;6;2\n"+
			"2024-01-10;8;F;5;1\n"+
			";40;M;6;2\n")
	coverage := writeFixture(t, dir, "cobertura.csv", "C_Vacinal\n30\n")

	return &config.Config{
		Sources: config.SourcesConfig{Sectors: sectors, Cases: cases, Coverage: coverage},
		Sectors: config.SectorsConfig{IDField: "CD_SETOR", PopulationField: "D_Pop_Risco", IDWidth: 3, SRID: 4326},
		Cases:   config.CasesConfig{DateColumn: "DT_SIN_PRI"},
		Coverage: config.CoverageConfig{
			Column: "C_Vacinal",
			Unit:   "percent",
		},
		Incidence: config.IncidenceConfig{WeekStart: "monday"},
		Priority: config.PriorityConfig{
			MeanIncidence:   float64Ptr(2.0),
			IncidenceSource: config.IncidenceConstant,
		},
		Store: config.StoreConfig{Driver: "none"},
		Log:   config.LogConfig{Level: "info"},
	}
}

func newTestMetrics(t *testing.T) (*observability.Metrics, *prometheus.Registry) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	for _, c := range m.Collectors() {
		require.NoError(t, reg.Register(c))
	}
	return m, reg
}

// metricValue sums counter and gauge samples of a family whose labels include want.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

// memStore is an in-memory store.Store.
type memStore struct {
	mu      sync.Mutex
	runs    map[string]*model.Run
	sectors map[string][]model.RankedSector
	next    int
	failErr error
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*model.Run), sectors: make(map[string][]model.RankedSector)}
}

func (m *memStore) CreateRun(_ context.Context, sources model.RunSources) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	m.next++
	r := &model.Run{ID: "run-" + string(rune('0'+m.next)), Sources: sources, Status: model.RunStatusRunning}
	m.runs[r.ID] = r
	return r, nil
}

func (m *memStore) CompleteRun(_ context.Context, runID string, result *model.RunResult, sectors []model.RankedSector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = model.RunStatusComplete
	r.Result = result
	m.sectors[runID] = sectors
	return nil
}

func (m *memStore) FailRun(_ context.Context, runID string, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = model.RunStatusFailed
	r.Error = runErr.Error()
	return nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Run
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) LatestRun(context.Context) (*model.Run, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) RunSectors(_ context.Context, runID string) ([]model.RankedSector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sectors[runID], nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }
