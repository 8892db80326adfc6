package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/relaywatch/relaywatch/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

// scriptedRenderer renders deterministically and can fail or panic for
// chosen keys a chosen number of times.
type scriptedRenderer struct {
	mu        sync.Mutex
	failures  map[string]int // key -> remaining failures
	panics    map[string]int // key -> remaining panics
	callCount map[string]int
}

func newScriptedRenderer() *scriptedRenderer {
	return &scriptedRenderer{
		failures:  make(map[string]int),
		panics:    make(map[string]int),
		callCount: make(map[string]int),
	}
}

func (r *scriptedRenderer) Render(_ context.Context, template string, data any) ([]byte, error) {
	key := data.(string)
	r.mu.Lock()
	r.callCount[key]++
	if r.panics[key] > 0 {
		r.panics[key]--
		r.mu.Unlock()
		panic("scripted renderer panic")
	}
	if r.failures[key] > 0 {
		r.failures[key]--
		r.mu.Unlock()
		return nil, errors.New("scripted renderer failure")
	}
	r.mu.Unlock()
	return []byte("<html>" + template + ":" + key + "</html>"), nil
}

func operatorJobs(n int) []Job {
	jobs := make([]Job, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("op-%04d", i)
		jobs = append(jobs, Job{Kind: KindOperator, Key: key, Template: "operator", Data: key})
	}
	return jobs
}

func TestRenderAllHappyPath(t *testing.T) {
	Convey("Given a small batch of jobs", t, func() {
		dir := t.TempDir()
		engine := NewEngine(newScriptedRenderer(), dir)

		jobs := []Job{
			{Kind: KindOperator, Key: "op-a", Template: "operator", Data: "op-a"},
			{Kind: KindCountry, Key: "de", Template: "country", Data: "de"},
			{Kind: KindSummary, Key: "network", Template: "summary", Data: "network"},
		}

		Convey("When rendered", func() {
			report, err := engine.RenderAll(context.Background(), jobs)
			So(err, ShouldBeNil)

			Convey("Then every document is persisted at its deterministic path", func() {
				So(report.Persisted, ShouldEqual, 3)
				So(report.Failures, ShouldBeEmpty)

				body, err := os.ReadFile(filepath.Join(dir, "operator", "op-a.html"))
				So(err, ShouldBeNil)
				So(string(body), ShouldEqual, "<html>operator:op-a</html>")

				_, err = os.Stat(filepath.Join(dir, "country", "de.html"))
				So(err, ShouldBeNil)
				_, err = os.Stat(filepath.Join(dir, "summary", "network.html"))
				So(err, ShouldBeNil)
			})

			Convey("Then no temp files are left behind", func() {
				matches, _ := filepath.Glob(filepath.Join(dir, "*", "*.tmp"))
				So(matches, ShouldBeEmpty)
			})
		})
	})
}

func TestRenderIsolatedFailure(t *testing.T) {
	Convey("Given 1000 jobs where exactly one fails permanently", t, func() {
		dir := t.TempDir()
		renderer := newScriptedRenderer()
		renderer.failures["op-0500"] = 2 // both attempts

		engine := NewEngine(renderer, dir,
			WithParallelThreshold(100),
			WithWorkers(4),
			WithChunkCap(50),
		)

		Convey("When rendered", func() {
			report, err := engine.RenderAll(context.Background(), operatorJobs(1000))
			So(err, ShouldBeNil)

			Convey("Then 999 documents persist and the one failure is identified", func() {
				So(report.Persisted, ShouldEqual, 999)
				So(report.Failures, ShouldHaveLength, 1)
				So(report.Failures[0].Key, ShouldEqual, "op-0500")
				So(report.Failures[0].Kind, ShouldEqual, KindOperator)
			})

			Convey("Then the failed document was never published", func() {
				_, err := os.Stat(filepath.Join(dir, "operator", "op-0500.html"))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})
	})
}

func TestRenderRetryOnce(t *testing.T) {
	Convey("Given a job whose first attempt fails", t, func() {
		dir := t.TempDir()
		renderer := newScriptedRenderer()
		renderer.failures["op-a"] = 1

		engine := NewEngine(renderer, dir)

		Convey("When rendered", func() {
			report, err := engine.RenderAll(context.Background(), []Job{
				{Kind: KindOperator, Key: "op-a", Template: "operator", Data: "op-a"},
			})
			So(err, ShouldBeNil)

			Convey("Then the retry succeeds and the document persists", func() {
				So(report.Persisted, ShouldEqual, 1)
				So(report.Failures, ShouldBeEmpty)
				So(renderer.callCount["op-a"], ShouldEqual, 2)
			})
		})
	})
}

func TestRenderPanicContainment(t *testing.T) {
	Convey("Given a renderer that panics for one job", t, func() {
		dir := t.TempDir()
		renderer := newScriptedRenderer()
		renderer.panics["op-b"] = 2 // both attempts

		engine := NewEngine(renderer, dir)

		Convey("When rendered alongside healthy jobs", func() {
			report, err := engine.RenderAll(context.Background(), []Job{
				{Kind: KindOperator, Key: "op-a", Template: "operator", Data: "op-a"},
				{Kind: KindOperator, Key: "op-b", Template: "operator", Data: "op-b"},
				{Kind: KindOperator, Key: "op-c", Template: "operator", Data: "op-c"},
			})
			So(err, ShouldBeNil)

			Convey("Then siblings persist and the panic becomes a per-job failure", func() {
				So(report.Persisted, ShouldEqual, 2)
				So(report.Failures, ShouldHaveLength, 1)
				So(report.Failures[0].Key, ShouldEqual, "op-b")
				So(report.Failures[0].Err, ShouldContainSubstring, "panic")
			})
		})
	})
}

func TestRenderIdempotence(t *testing.T) {
	Convey("Given the same jobs rendered twice", t, func() {
		dir := t.TempDir()
		engine := NewEngine(newScriptedRenderer(), dir)
		jobs := operatorJobs(10)

		Convey("When both passes complete", func() {
			_, err := engine.RenderAll(context.Background(), jobs)
			So(err, ShouldBeNil)
			first, err := os.ReadFile(filepath.Join(dir, "operator", "op-0003.html"))
			So(err, ShouldBeNil)

			_, err = engine.RenderAll(context.Background(), jobs)
			So(err, ShouldBeNil)
			second, err := os.ReadFile(filepath.Join(dir, "operator", "op-0003.html"))
			So(err, ShouldBeNil)

			Convey("Then the output is byte-identical", func() {
				So(second, ShouldResemble, first)
			})
		})
	})
}

func TestRenderStrategyEquivalence(t *testing.T) {
	Convey("Given the same jobs under both dispatch strategies", t, func() {
		seqDir := t.TempDir()
		parDir := t.TempDir()
		jobs := operatorJobs(200)

		seq := NewEngine(newScriptedRenderer(), seqDir, WithDisableParallelism(true))
		par := NewEngine(newScriptedRenderer(), parDir, WithParallelThreshold(10), WithWorkers(4))

		Convey("When both complete", func() {
			seqReport, err := seq.RenderAll(context.Background(), jobs)
			So(err, ShouldBeNil)
			parReport, err := par.RenderAll(context.Background(), jobs)
			So(err, ShouldBeNil)

			Convey("Then the persisted sets and contents match", func() {
				So(parReport.Persisted, ShouldEqual, seqReport.Persisted)
				for _, key := range []string{"op-0000", "op-0099", "op-0199"} {
					a, err := os.ReadFile(filepath.Join(seqDir, "operator", key+".html"))
					So(err, ShouldBeNil)
					b, err := os.ReadFile(filepath.Join(parDir, "operator", key+".html"))
					So(err, ShouldBeNil)
					So(b, ShouldResemble, a)
				}
			})
		})
	})
}

func TestOutputPath(t *testing.T) {
	Convey("Given job keys needing sanitization", t, func() {
		So(outputPath("out", Job{Kind: KindOperator, Key: "op@example.org"}),
			ShouldEqual, filepath.Join("out", "operator", "op@example.org.html"))
		So(outputPath("out", Job{Kind: KindCountry, Key: "a/b c"}),
			ShouldEqual, filepath.Join("out", "country", "a_b_c.html"))
		So(outputPath("out", Job{Kind: KindSummary, Key: ""}),
			ShouldEqual, filepath.Join("out", "summary", "index.html"))
	})
}
