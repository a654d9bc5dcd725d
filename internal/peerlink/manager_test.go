package peerlink

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/sharelink/internal/media"
	"github.com/1ureka/sharelink/internal/signaling"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// Compile-time interface checks.
var (
	_ Link         = (*fakeLink)(nil)
	_ media.Source = (*fakeSource)(nil)
	_ Signaler     = (*recordingSignaler)(nil)
	_ Sink         = (*recordingSink)(nil)
	_ RemoteTrack  = fakeRemoteTrack{}
)

// fakeLink records every call. Like a real peer connection it refuses remote
// candidates until a remote description is set.
type fakeLink struct {
	id     int
	events *eventLog

	mu         sync.Mutex
	tracks     []webrtc.TrackLocal
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []string
	closed     bool

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(RemoteTrack)
	onState func(webrtc.PeerConnectionState)
}

func (l *fakeLink) AddTrack(track webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = append(l.tracks, track)
	return nil
}

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	return l.setLocal(webrtc.SDPTypeOffer)
}

func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	hasRemote := l.remote != nil
	l.mu.Unlock()
	if !hasRemote {
		return webrtc.SessionDescription{}, errors.New("answer without remote offer")
	}
	return l.setLocal(webrtc.SDPTypeAnswer)
}

func (l *fakeLink) setLocal(typ webrtc.SDPType) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sdp := webrtc.SessionDescription{Type: typ, SDP: fmt.Sprintf("v=0 %s-%d", typ, l.id)}
	l.local = &sdp
	return sdp, nil
}

func (l *fakeLink) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remote = &sdp
	return nil
}

func (l *fakeLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remote == nil {
		return errors.New("candidate before remote description")
	}
	l.candidates = append(l.candidates, c.Candidate)
	return nil
}

func (l *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { l.onICE = fn }
func (l *fakeLink) OnTrack(fn func(RemoteTrack))                    { l.onTrack = fn }
func (l *fakeLink) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	l.onState = fn
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.events.add("close %d", l.id)
	return nil
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) applied() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.candidates...)
}

// Callbacks are fired from the test goroutine, never from inside a Link method.
func (l *fakeLink) fireCandidate(c webrtc.ICECandidateInit) { l.onICE(c) }
func (l *fakeLink) fireTrack(tr RemoteTrack)                { l.onTrack(tr) }
func (l *fakeLink) fireState(s webrtc.PeerConnectionState)  { l.onState(s) }

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, fmt.Sprintf(format, args...))
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type linkFactory struct {
	events eventLog
	mu     sync.Mutex
	links  []*fakeLink
}

func (f *linkFactory) New() (Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeLink{id: len(f.links) + 1, events: &f.events}
	f.links = append(f.links, l)
	f.events.add("open %d", l.id)
	return l, nil
}

func (f *linkFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

func (f *linkFactory) last() *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.links) == 0 {
		return nil
	}
	return f.links[len(f.links)-1]
}

type fakeStream struct {
	tracks []webrtc.TrackLocal

	mu      sync.Mutex
	stopped bool
}

func (s *fakeStream) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// fakeSource hands out streams with one video track. When gate is non-nil
// Capture blocks until it is closed.
type fakeSource struct {
	t      *testing.T
	deny   bool
	gate   chan struct{}
	called chan struct{}

	mu      sync.Mutex
	streams []*fakeStream
}

func (s *fakeSource) Capture(ctx context.Context, req media.Request) (media.Stream, error) {
	if s.called != nil {
		close(s.called)
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.deny {
		return nil, media.ErrPermissionDenied
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "screen",
	)
	if err != nil {
		s.t.Fatalf("NewTrackLocalStaticSample: %v", err)
	}

	st := &fakeStream{tracks: []webrtc.TrackLocal{track}}
	s.mu.Lock()
	s.streams = append(s.streams, st)
	s.mu.Unlock()
	return st, nil
}

func (s *fakeSource) last() *fakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streams) == 0 {
		return nil
	}
	return s.streams[len(s.streams)-1]
}

type sentSignal struct {
	to  string
	sig signaling.Signal
}

type recordingSignaler struct {
	mu   sync.Mutex
	err  error
	sent []sentSignal
}

func (r *recordingSignaler) Send(recipient string, sig signaling.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentSignal{to: recipient, sig: sig})
	return nil
}

func (r *recordingSignaler) all() []sentSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentSignal(nil), r.sent...)
}

type fakeRemoteTrack struct {
	id   string
	kind webrtc.RTPCodecType
}

func (f fakeRemoteTrack) ID() string                { return f.id }
func (f fakeRemoteTrack) StreamID() string          { return "remote" }
func (f fakeRemoteTrack) Kind() webrtc.RTPCodecType { return f.kind }

type recordingSink struct {
	local  []webrtc.TrackLocal
	remote RemoteTrack
}

func (s *recordingSink) SetLocalTracks(tracks []webrtc.TrackLocal) { s.local = tracks }
func (s *recordingSink) SetRemoteTrack(track RemoteTrack)          { s.remote = track }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type harness struct {
	m       *Manager
	links   *linkFactory
	source  *fakeSource
	signals *recordingSignaler
	sink    *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		links:   &linkFactory{},
		source:  &fakeSource{t: t},
		signals: &recordingSignaler{},
		sink:    &recordingSink{},
	}
	h.m = NewManager(Config{
		Signaler: h.signals,
		Source:   h.source,
		NewLink:  h.links.New,
		Sink:     h.sink,
	})
	return h
}

func envelope(t *testing.T, from string, sig signaling.Signal) signaling.Envelope {
	t.Helper()
	content, err := signaling.EncodeSignal(sig)
	if err != nil {
		t.Fatalf("EncodeSignal: %v", err)
	}
	return signaling.Envelope{Sender: from, Recipient: "alice", Type: signaling.KindSignal, Content: content}
}

func offerFrom(t *testing.T, from string) signaling.Envelope {
	return envelope(t, from, signaling.Description(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote-offer"}))
}

func answerFrom(t *testing.T, from string) signaling.Envelope {
	return envelope(t, from, signaling.Description(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 remote-answer"}))
}

func candidateFrom(t *testing.T, from string, n int) signaling.Envelope {
	return envelope(t, from, signaling.Candidate(cand(n)))
}

var videoTrack = fakeRemoteTrack{id: "remote-video", kind: webrtc.RTPCodecTypeVideo}

func assertState(t *testing.T, m *Manager, want State) {
	t.Helper()
	if got := m.State(); got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}
}

func share(t *testing.T, h *harness, partner string) {
	t.Helper()
	if err := h.m.StartLocalShare(context.Background(), partner, media.Request{Video: true}); err != nil {
		t.Fatalf("StartLocalShare: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Local share
// ---------------------------------------------------------------------------

func TestStartLocalShareSendsOffer(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	assertState(t, h.m, Offering)
	if h.m.Partner() != "bob" {
		t.Errorf("partner = %q, want bob", h.m.Partner())
	}

	sigs := h.signals.all()
	if len(sigs) != 1 || sigs[0].to != "bob" || !sigs[0].sig.IsOffer() {
		t.Fatalf("signals = %+v, want one offer to bob", sigs)
	}

	link := h.links.last()
	if len(link.tracks) != 1 {
		t.Errorf("link has %d tracks, want 1", len(link.tracks))
	}
	if len(h.sink.local) != 1 || len(h.m.LocalTracks()) != 1 {
		t.Error("local track slot not filled")
	}
}

func TestShareAnswerAndTrackConnects(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	if err := h.m.HandleInboundSignal(answerFrom(t, "bob")); err != nil {
		t.Fatalf("answer: %v", err)
	}
	assertState(t, h.m, Offering)

	h.links.last().fireTrack(videoTrack)
	assertState(t, h.m, Connected)

	if h.m.RemoteTrack() != videoTrack || h.sink.remote != videoTrack {
		t.Error("remote track slot not filled")
	}
}

func TestTrackBeforeAnswer(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	h.links.last().fireTrack(videoTrack)
	assertState(t, h.m, Offering)

	if err := h.m.HandleInboundSignal(answerFrom(t, "bob")); err != nil {
		t.Fatalf("answer: %v", err)
	}
	assertState(t, h.m, Connected)
}

func TestCandidatesParkedUntilAnswer(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	for i := 1; i <= 3; i++ {
		if err := h.m.HandleInboundSignal(candidateFrom(t, "bob", i)); err != nil {
			t.Fatalf("candidate %d: %v", i, err)
		}
	}
	if n := h.m.PendingCandidates(); n != 3 {
		t.Fatalf("pending = %d, want 3", n)
	}

	if err := h.m.HandleInboundSignal(answerFrom(t, "bob")); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if n := h.m.PendingCandidates(); n != 0 {
		t.Errorf("pending after answer = %d, want 0", n)
	}

	if err := h.m.HandleInboundSignal(candidateFrom(t, "bob", 4)); err != nil {
		t.Fatalf("late candidate: %v", err)
	}

	got := h.links.last().applied()
	if len(got) != 4 {
		t.Fatalf("applied %d candidates, want 4", len(got))
	}
	for i, c := range got {
		if c != cand(i+1).Candidate {
			t.Errorf("candidate %d = %q, want %q", i, c, cand(i+1).Candidate)
		}
	}
}

// permutations returns every ordering of 1..n.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := append(append(append([]int(nil), p[:i]...), n), p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

func TestAnyAnswerAndCandidateOrderConnects(t *testing.T) {
	const n = 3

	for _, order := range permutations(n) {
		for answerAt := 0; answerAt <= n; answerAt++ {
			for _, trackFirst := range []bool{false, true} {
				name := fmt.Sprintf("candidates%v/answer@%d/trackFirst=%v", order, answerAt, trackFirst)
				t.Run(name, func(t *testing.T) {
					h := newHarness(t)
					share(t, h, "bob")
					link := h.links.last()
					if trackFirst {
						link.fireTrack(videoTrack)
					}

					var want []string
					for i := 0; i <= n; i++ {
						if i == answerAt {
							if err := h.m.HandleInboundSignal(answerFrom(t, "bob")); err != nil {
								t.Fatalf("answer: %v", err)
							}
							if pending := h.m.PendingCandidates(); pending != 0 {
								t.Fatalf("pending right after answer = %d", pending)
							}
						}
						if i == n {
							break
						}
						c := order[i]
						if err := h.m.HandleInboundSignal(candidateFrom(t, "bob", c)); err != nil {
							t.Fatalf("candidate %d: %v", c, err)
						}
						want = append(want, cand(c).Candidate)
						if i < answerAt && len(link.applied()) != 0 {
							t.Fatalf("candidate %d applied before the answer", c)
						}
					}

					if !trackFirst {
						assertState(t, h.m, Offering)
						link.fireTrack(videoTrack)
					}
					assertState(t, h.m, Connected)

					if pending := h.m.PendingCandidates(); pending != 0 {
						t.Errorf("pending = %d, want 0", pending)
					}
					if got := link.applied(); !slices.Equal(got, want) {
						t.Errorf("applied %v, want arrival order %v", got, want)
					}
				})
			}
		}
	}
}

// endOfCandidates is the browser's empty-candidate marker.
func endOfCandidates(t *testing.T, from string) signaling.Envelope {
	mid := "0"
	idx := uint16(0)
	return envelope(t, from, signaling.Candidate(webrtc.ICECandidateInit{Candidate: "", SDPMid: &mid, SDPMLineIndex: &idx}))
}

func TestEndOfCandidatesKeepsLink(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")
	if err := h.m.HandleInboundSignal(answerFrom(t, "bob")); err != nil {
		t.Fatalf("answer: %v", err)
	}
	link := h.links.last()
	link.fireTrack(videoTrack)
	assertState(t, h.m, Connected)

	if err := h.m.HandleInboundSignal(endOfCandidates(t, "bob")); err != nil {
		t.Fatalf("end of candidates: %v", err)
	}
	assertState(t, h.m, Connected)
	if link.isClosed() {
		t.Error("link closed by end of candidates")
	}
}

func TestParkedEndOfCandidatesDrains(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	for _, env := range []signaling.Envelope{candidateFrom(t, "bob", 1), endOfCandidates(t, "bob")} {
		if err := h.m.HandleInboundSignal(env); err != nil {
			t.Fatalf("candidate: %v", err)
		}
	}
	if err := h.m.HandleInboundSignal(answerFrom(t, "bob")); err != nil {
		t.Fatalf("answer: %v", err)
	}

	assertState(t, h.m, Offering)
	if got := h.links.last().applied(); !slices.Equal(got, []string{cand(1).Candidate, ""}) {
		t.Errorf("applied %q", got)
	}
}

func TestPermissionDenied(t *testing.T) {
	h := newHarness(t)
	h.source.deny = true

	err := h.m.StartLocalShare(context.Background(), "bob", media.Request{Video: true})
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
	assertState(t, h.m, Idle)
	if h.m.Partner() != "" {
		t.Errorf("partner = %q, want empty", h.m.Partner())
	}
	if n := len(h.signals.all()); n != 0 {
		t.Errorf("%d signals sent, want 0", n)
	}
	if n := h.links.count(); n != 0 {
		t.Errorf("%d links created, want 0", n)
	}
}

func TestOfferSendFailure(t *testing.T) {
	h := newHarness(t)
	h.signals.err = errors.New("bus down")

	err := h.m.StartLocalShare(context.Background(), "bob", media.Request{Video: true})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	assertState(t, h.m, Offering)
}

func TestCaptureSupersededByStop(t *testing.T) {
	h := newHarness(t)
	h.source.gate = make(chan struct{})
	h.source.called = make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		errc <- h.m.StartLocalShare(context.Background(), "bob", media.Request{Video: true})
	}()

	<-h.source.called
	h.m.Stop()
	close(h.source.gate)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("err = %v, want ErrSuperseded", err)
	}
	assertState(t, h.m, Idle)
	if st := h.source.last(); st == nil || !st.isStopped() {
		t.Error("late stream was not stopped")
	}
	if n := h.links.count(); n != 0 {
		t.Errorf("%d links created, want 0", n)
	}
}

func TestRestartShareClosesPriorLink(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")
	first := h.source.last()

	share(t, h, "bob")

	if !first.isStopped() {
		t.Error("first stream still running")
	}
	want := []string{"open 1", "close 1", "open 2"}
	got := h.links.events.list()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

// ---------------------------------------------------------------------------
// Inbound offers
// ---------------------------------------------------------------------------

func TestInboundOfferIsAnswered(t *testing.T) {
	h := newHarness(t)

	if err := h.m.HandleInboundSignal(offerFrom(t, "bob")); err != nil {
		t.Fatalf("offer: %v", err)
	}
	assertState(t, h.m, Answering)
	if h.m.Partner() != "bob" {
		t.Errorf("partner = %q, want bob", h.m.Partner())
	}

	sigs := h.signals.all()
	if len(sigs) != 1 || sigs[0].to != "bob" || !sigs[0].sig.IsAnswer() {
		t.Fatalf("signals = %+v, want one answer to bob", sigs)
	}

	if err := h.m.HandleInboundSignal(candidateFrom(t, "bob", 1)); err != nil {
		t.Fatalf("candidate: %v", err)
	}
	if got := h.links.last().applied(); len(got) != 1 {
		t.Errorf("applied %d candidates, want 1", len(got))
	}

	h.links.last().fireTrack(videoTrack)
	assertState(t, h.m, Connected)
}

func TestSecondOfferReplacesLink(t *testing.T) {
	h := newHarness(t)

	if err := h.m.HandleInboundSignal(offerFrom(t, "bob")); err != nil {
		t.Fatalf("first offer: %v", err)
	}
	first := h.links.last()
	first.fireTrack(videoTrack)
	assertState(t, h.m, Connected)
	epoch := h.m.Epoch()

	if err := h.m.HandleInboundSignal(offerFrom(t, "carol")); err != nil {
		t.Fatalf("second offer: %v", err)
	}

	want := []string{"open 1", "close 1", "open 2"}
	if got := h.links.events.list(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if !first.isClosed() {
		t.Error("first link not closed")
	}
	if h.m.Epoch() <= epoch {
		t.Errorf("epoch %d did not advance past %d", h.m.Epoch(), epoch)
	}
	assertState(t, h.m, Answering)
	if h.m.Partner() != "carol" {
		t.Errorf("partner = %q, want carol", h.m.Partner())
	}
	if h.m.RemoteTrack() != nil {
		t.Error("remote track slot survived the replaced link")
	}
}

func TestOfferWhileOfferingReplacesShare(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")
	stream := h.source.last()

	if err := h.m.HandleInboundSignal(offerFrom(t, "bob")); err != nil {
		t.Fatalf("offer: %v", err)
	}
	assertState(t, h.m, Answering)
	if !stream.isStopped() {
		t.Error("local stream of the replaced share still running")
	}
	if h.m.LocalTracks() != nil {
		t.Error("local track slot survived the replaced share")
	}
}

// ---------------------------------------------------------------------------
// Rejections
// ---------------------------------------------------------------------------

func TestAnswerWhileIdle(t *testing.T) {
	h := newHarness(t)
	epoch := h.m.Epoch()

	if err := h.m.HandleInboundSignal(answerFrom(t, "bob")); !errors.Is(err, ErrState) {
		t.Fatalf("err = %v, want ErrState", err)
	}
	assertState(t, h.m, Idle)
	if h.m.Epoch() != epoch {
		t.Errorf("epoch changed from %d to %d", epoch, h.m.Epoch())
	}
}

func TestAnswerFromWrongPeer(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	if err := h.m.HandleInboundSignal(answerFrom(t, "mallory")); !errors.Is(err, ErrState) {
		t.Fatalf("err = %v, want ErrState", err)
	}
	assertState(t, h.m, Offering)
}

func TestDuplicateAnswer(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	if err := h.m.HandleInboundSignal(answerFrom(t, "bob")); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := h.m.HandleInboundSignal(answerFrom(t, "bob")); !errors.Is(err, ErrState) {
		t.Fatalf("duplicate err = %v, want ErrState", err)
	}
	assertState(t, h.m, Offering)
}

func TestCandidateWithoutLink(t *testing.T) {
	h := newHarness(t)

	if err := h.m.HandleInboundSignal(candidateFrom(t, "bob", 1)); !errors.Is(err, ErrState) {
		t.Fatalf("err = %v, want ErrState", err)
	}
	if n := h.links.count(); n != 0 {
		t.Errorf("%d links created, want 0", n)
	}
}

func TestCandidateFromStranger(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	if err := h.m.HandleInboundSignal(candidateFrom(t, "mallory", 1)); !errors.Is(err, ErrState) {
		t.Fatalf("err = %v, want ErrState", err)
	}
	if n := h.m.PendingCandidates(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestMalformedSignalFromPartnerResets(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	env := signaling.Envelope{Sender: "bob", Recipient: "alice", Type: signaling.KindSignal, Content: "{not json"}
	if err := h.m.HandleInboundSignal(env); !errors.Is(err, ErrNegotiation) {
		t.Fatalf("err = %v, want ErrNegotiation", err)
	}
	assertState(t, h.m, Idle)
	if !h.links.last().isClosed() {
		t.Error("link not closed")
	}
}

func TestMalformedSignalFromStranger(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	env := signaling.Envelope{Sender: "mallory", Recipient: "alice", Type: signaling.KindSignal, Content: `{}`}
	if err := h.m.HandleInboundSignal(env); !errors.Is(err, ErrState) {
		t.Fatalf("err = %v, want ErrState", err)
	}
	assertState(t, h.m, Offering)
}

// ---------------------------------------------------------------------------
// Stop and callbacks
// ---------------------------------------------------------------------------

func TestStopFromIdle(t *testing.T) {
	h := newHarness(t)
	h.m.Stop()
	h.m.Stop()
	assertState(t, h.m, Idle)
}

func TestStopReleasesEverything(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")
	h.m.HandleInboundSignal(candidateFrom(t, "bob", 1))
	h.links.last().fireTrack(videoTrack)

	h.m.Stop()

	assertState(t, h.m, Idle)
	if !h.source.last().isStopped() {
		t.Error("stream not stopped")
	}
	if !h.links.last().isClosed() {
		t.Error("link not closed")
	}
	if h.m.PendingCandidates() != 0 || h.m.Partner() != "" {
		t.Error("pending candidates or partner survived Stop")
	}
	if h.m.LocalTracks() != nil || h.m.RemoteTrack() != nil {
		t.Error("track slots survived Stop")
	}
	if h.sink.local != nil || h.sink.remote != nil {
		t.Error("sink not cleared")
	}
}

func TestStaleCallbacksIgnored(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")
	old := h.links.last()
	h.m.Stop()

	old.fireTrack(videoTrack)
	old.fireCandidate(cand(1))
	old.fireState(webrtc.PeerConnectionStateFailed)

	assertState(t, h.m, Idle)
	if h.m.RemoteTrack() != nil {
		t.Error("stale track reached the remote slot")
	}
	if n := len(h.signals.all()); n != 1 {
		t.Errorf("%d signals sent, want only the offer", n)
	}
}

func TestLocalCandidateTrickled(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")

	h.links.last().fireCandidate(cand(7))

	sigs := h.signals.all()
	if len(sigs) != 2 {
		t.Fatalf("got %d signals, want offer and candidate", len(sigs))
	}
	if sigs[1].to != "bob" || sigs[1].sig.ICE == nil || sigs[1].sig.ICE.Candidate != cand(7).Candidate {
		t.Errorf("second signal = %+v, want candidate 7 to bob", sigs[1])
	}
}

func TestConnectionFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	share(t, h, "bob")
	link := h.links.last()

	link.fireState(webrtc.PeerConnectionStateDisconnected)
	assertState(t, h.m, Offering)

	link.fireState(webrtc.PeerConnectionStateFailed)
	assertState(t, h.m, Idle)
	if !link.isClosed() {
		t.Error("failed link not closed")
	}
}
