package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dbkeeper/internal/domain"
)

func TestMetrics(t *testing.T) {
	Convey("Given a metrics instance", t, func() {
		m := New()
		m.now = func() time.Time { return time.Unix(1717245045, 0) }

		Convey("Operations are counted per engine and result", func() {
			m.ObserveOperation(domain.OperationBackup, domain.EnginePostgres, "success", 3*time.Second)
			m.ObserveOperation(domain.OperationBackup, domain.EnginePostgres, "success", time.Second)
			m.ObserveOperation(domain.OperationBackup, domain.EnginePostgres, "DumpFailed", time.Second)

			So(testutil.ToFloat64(m.operations.WithLabelValues("backup", "postgres", "success")), ShouldEqual, 2)
			So(testutil.ToFloat64(m.operations.WithLabelValues("backup", "postgres", "DumpFailed")), ShouldEqual, 1)
			So(testutil.CollectAndCount(m.duration), ShouldEqual, 1)
		})

		Convey("Artifacts update size and last success", func() {
			m.ObserveArtifact(domain.EngineMySQL, 2048)

			So(testutil.ToFloat64(m.artifactSize.WithLabelValues("mysql")), ShouldEqual, 2048)
			So(testutil.ToFloat64(m.lastSuccess.WithLabelValues("mysql")), ShouldEqual, 1717245045)
		})

		Convey("Uploads are split by status", func() {
			m.ObserveUpload("s3", nil)
			m.ObserveUpload("s3", errors.New("denied"))
			m.ObserveDeletions("s3", 3)

			So(testutil.ToFloat64(m.uploads.WithLabelValues("s3", "success")), ShouldEqual, 1)
			So(testutil.ToFloat64(m.uploads.WithLabelValues("s3", "error")), ShouldEqual, 1)
			So(testutil.ToFloat64(m.deletions.WithLabelValues("s3")), ShouldEqual, 3)
		})

		Convey("The handler exposes metrics and health", func() {
			m.ObserveOperation(domain.OperationRestore, domain.EngineSQLServer, "success", time.Second)

			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `dbkeeper_operations_total{engine="sqlserver",operation="restore",result="success"} 1`)

			rec = httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			So(rec.Body.String(), ShouldEqual, "OK")
		})

		Convey("The server stops when its context ends", func() {
			srv, err := m.Listen("127.0.0.1:0")
			So(err, ShouldBeNil)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- srv.Serve(ctx) }()

			resp, err := http.Get("http://" + srv.Addr() + "/health")
			So(err, ShouldBeNil)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			So(string(body), ShouldEqual, "OK")

			cancel()
			So(<-done, ShouldBeNil)
		})
	})
}
