package workflow

// Posture selects which advisory transition menu is offered.
type Posture int

const (
	// PostureFilter covers approvals, quality and priority calls, end-of-life decisions.
	PostureFilter Posture = iota
	// PostureRespond covers day-to-day progress and blocker handling.
	PostureRespond
)

func (p Posture) String() string {
	if p == PostureRespond {
		return "respond"
	}
	return "filter"
}

// ParsePosture maps "respond" to PostureRespond and anything else to PostureFilter.
func ParsePosture(s string) Posture {
	if s == "respond" {
		return PostureRespond
	}
	return PostureFilter
}

// Menus are keyed by effective status. Escalated stories lose their stage in
// the effective label, so they use the stage-keyed tables instead.
var filterMenu = map[string][]string{
	TerminusInfeasible: {StageConcept, StatusWishlisted, TerminusArchived},
	TerminusRejected:   {StageConcept, StatusWishlisted, TerminusArchived},
	StatusWishlisted:   {StageConcept, TerminusRejected, TerminusArchived},
	StageConcept:       {StagePlanning, StatusEscalated, TerminusRejected, StatusWishlisted, StatusPolish},
	StatusPolish:       {StageConcept, StageReleasing, TerminusRejected, StatusWishlisted},
	StagePlanning:      {StatusEscalated, TerminusRejected},
	StatusBlocked:      {StatusEscalated},
	StatusPaused:       {StatusEscalated},
	StageTesting:       {StageReleasing},
	StageReleasing:     {TerminusShipped, StatusPolish},
	TerminusLegacy:     {TerminusDeprecated, TerminusArchived},
	TerminusDeprecated: {TerminusArchived, TerminusLegacy},
	TerminusArchived:   {TerminusDeprecated, StatusWishlisted},
}

var respondMenu = map[string][]string{
	StagePlanning:     {StageImplementing},
	StatusBlocked:     {StagePlanning, StageImplementing},
	StatusBroken:      {StageImplementing, StatusPaused, StatusBlocked},
	StatusPaused:      {StageImplementing, StatusBlocked},
	StageImplementing: {StageTesting, StatusPaused, StatusBroken, StatusBlocked},
	StageTesting:      {StageImplementing, StatusBroken, StageReleasing},
	StageReleasing:    {StageTesting, StatusBroken},
	StatusPolish:      {StageTesting},
}

var escalatedFilterMenu = map[string][]string{
	StageConcept:      {StagePlanning, StatusPolish, StatusWishlisted, TerminusRejected, StatusPaused},
	StagePlanning:     {StatusQueued, StatusPolish, StatusWishlisted, TerminusRejected},
	StageImplementing: {StatusWishlisted, TerminusRejected, StatusBroken},
	StageTesting:      {StageReleasing, StatusPolish},
	StageReleasing:    {TerminusShipped, StatusPolish},
}

var escalatedRespondMenu = map[string][]string{
	StageConcept:      {StagePlanning},
	StagePlanning:     {StageImplementing},
	StageImplementing: {StageTesting, StatusBroken},
	StageTesting:      {StageReleasing},
	StageReleasing:    {TerminusShipped},
}

// Menu returns the advisory next-state targets offered for s under posture p.
// The result is a fresh slice; Apply accepts any valid target regardless.
func Menu(s State, p Posture) []string {
	var table map[string][]string
	key := s.Effective()
	switch {
	case s.Status == StatusEscalated && s.Terminus == nil && p == PostureRespond:
		table, key = escalatedRespondMenu, s.Stage
	case s.Status == StatusEscalated && s.Terminus == nil:
		table, key = escalatedFilterMenu, s.Stage
	case p == PostureRespond:
		table = respondMenu
	default:
		table = filterMenu
	}
	return append([]string(nil), table[key]...)
}
