// Package wampbus carries the signaling topics over a WAMP router: a client
// satisfying signaling.Bus and a server embedding the router together with a
// presence agent.
package wampbus

import (
	"strings"

	"github.com/gammazero/nexus/v3/wamp"
)

// URIPrefix is prepended to every topic.
const URIPrefix = "sharelink"

// TopicURI maps a slash separated topic onto a dotted WAMP URI. Dots inside a
// component become underscores so they cannot split it.
//
//	/user/bob/queue/webrtc -> sharelink.user.bob.queue.webrtc
func TopicURI(topic string) wamp.URI {
	parts := []string{URIPrefix}
	for _, p := range strings.Split(topic, "/") {
		if p == "" {
			continue
		}
		parts = append(parts, strings.ReplaceAll(p, ".", "_"))
	}
	return wamp.URI(strings.Join(parts, "."))
}
