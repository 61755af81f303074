package comms

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/pion/webrtc/v2"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTwilioClient(t *testing.T) {
	Convey("missing credentials are refused", t, func() {
		os.Unsetenv("TWILIO_SID")
		os.Unsetenv("TWILIO_TOKEN")
		_, err := NewTwilioClient()
		So(err, ShouldNotBeNil)
	})

	Convey("ice servers are fetched from the token endpoint", t, func() {
		var user, pass string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, _ = r.BasicAuth()
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ice_servers":[
				{"url":"stun:global.stun.twilio.com:3478"},
				{"url":"turn:global.turn.twilio.com:3478","username":"u","credential":"c"}
			]}`))
		}))
		defer server.Close()

		os.Setenv("TWILIO_SID", "AC123")
		os.Setenv("TWILIO_TOKEN", "secret")
		defer os.Unsetenv("TWILIO_SID")
		defer os.Unsetenv("TWILIO_TOKEN")

		tc, err := NewTwilioClient()
		So(err, ShouldBeNil)
		So(tc.URL, ShouldContainSubstring, "AC123")
		tc.URL = server.URL

		servers, err := tc.IceServers()
		So(err, ShouldBeNil)
		So(user, ShouldEqual, "AC123")
		So(pass, ShouldEqual, "secret")
		So(servers, ShouldHaveLength, 2)
		So(servers[0].URLs, ShouldResemble, []string{"stun:global.stun.twilio.com:3478"})
		So(servers[1].Username, ShouldEqual, "u")
		So(servers[1].CredentialType, ShouldEqual, webrtc.ICECredentialTypePassword)

		Convey("error statuses are reported", func() {
			failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer failing.Close()

			tc.URL = failing.URL
			_, err := tc.IceServers()
			So(err, ShouldNotBeNil)
		})
	})
}
