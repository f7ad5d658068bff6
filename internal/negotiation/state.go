package negotiation

// State is the negotiation progress of one call session.
//
//	Idle ── StartCaptureLocalVideo ──▶ LocalReady ── Offer ──▶ Offering ──▶ Offered
//	Offered ── SetAnswer ──▶ Answered ── remote track ──▶ Active
//	Idle ── SetOffer ──▶ RemoteOffered ── Answer ──▶ Answering ──▶ Answered
//	any ── Dispose ──▶ Disposed
type State int

const (
	Idle State = iota
	LocalReady
	Offering
	Offered
	RemoteOffered
	Answering
	Answered
	Active
	Disposed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LocalReady:
		return "local-ready"
	case Offering:
		return "offering"
	case Offered:
		return "offered"
	case RemoteOffered:
		return "remote-offered"
	case Answering:
		return "answering"
	case Answered:
		return "answered"
	case Active:
		return "active"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}
