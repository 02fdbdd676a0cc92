package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mengeric/reportfetch-go/config"
)

func newTestClient(baseURL string) *ODataClient {
	return NewODataClient("DD", config.Instance{BaseURL: baseURL, Username: "u", Password: "p"},
		500*time.Millisecond, 2*time.Second)
}

func TestODataClientGet(t *testing.T) {
	Convey("Get should encode the filter, authenticate and normalize rows", t, func() {
		var gotQuery, gotUser, gotPass string
		mux := http.NewServeMux()
		mux.HandleFunc("/JobsScheduleDetailed", func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			u, p, _ := r.BasicAuth()
			gotUser, gotPass = u, p
			_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{
				{"RefNo": "A1", "DateScheduled": "2024-11-27T00:00:00Z"},
				{"RefNo": "A2", "DateScheduled": "not-a-date"},
			}})
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		c := newTestClient(ts.URL)
		rows, err := c.Get(context.Background(), "JobsScheduleDetailed", []string{
			"OrderStatus eq 'Work in Progress'",
			"Customer eq 'O''Malley'",
		})
		So(err, ShouldBeNil)
		So(gotUser, ShouldEqual, "u")
		So(gotPass, ShouldEqual, "p")
		// 空格转 %20，() 与 ' 保留
		So(gotQuery, ShouldContainSubstring, "%20and%20")
		So(gotQuery, ShouldContainSubstring, "'Work%20in%20Progress'")

		So(rows, ShouldHaveLength, 2)
		So(rows[0]["Instance"], ShouldEqual, "DD")
		So(rows[0]["DateScheduled"], ShouldEqual, "27 Nov 2024")
		// 无法解析的日期原样保留
		So(rows[1]["DateScheduled"], ShouldEqual, "not-a-date")
	})

	Convey("empty value arrays should come back as empty row sets", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
		}))
		defer ts.Close()

		rows, err := newTestClient(ts.URL).Get(context.Background(), "SalesReport", nil)
		So(err, ShouldBeNil)
		So(rows, ShouldBeEmpty)
	})

	Convey("non-2xx responses should surface as StatusError", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		_, err := newTestClient(ts.URL).Get(context.Background(), "JobsScheduleDetailed", nil)
		var se *StatusError
		So(errors.As(err, &se), ShouldBeTrue)
		So(se.HTTPStatus(), ShouldEqual, 503)
	})

	Convey("an unreachable upstream should fail with a transport error", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		ts.Close() // 端口已释放，拨号必然失败

		_, err := newTestClient(ts.URL).Get(context.Background(), "JobsScheduleDetailed", nil)
		So(err, ShouldNotBeNil)
		var se *StatusError
		So(errors.As(err, &se), ShouldBeFalse)
	})
}

func TestQuote(t *testing.T) {
	Convey("OData literals should double inner single quotes", t, func() {
		So(Quote("Acme"), ShouldEqual, "'Acme'")
		So(Quote("O'Malley"), ShouldEqual, "'O''Malley'")
		So(Quote(""), ShouldEqual, "''")
	})
}
