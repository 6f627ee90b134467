package lunos

// The coding table. A LUNOS Universal Controller is configured on its
// hardware rotary switch to one of several "codings"; the coding decides
// how many speeds exist, what the W1/W2 pair for each speed is, and
// which auxiliary modes (summer ventilation, filter reminder) the
// controller reacts to. All of this is static read-only data, loaded
// once and safe for concurrent reads.

// Airflow describes fan behavior at one speed, per fan pair as coded.
// Zero fields mean the datasheet does not specify a value.
type Airflow struct {
	CFM   float64
	Watts float64
	DB    float64
}

// CFMToCMH converts cubic feet/minute to cubic meters/hour.
const CFMToCMH = 1.69901

// relayPair is the steady-state W1/W2 encoding of a speed.
type relayPair struct {
	w1 bool
	w2 bool
}

// Coding describes one controller hardware variant.
type Coding struct {
	Slug            string
	Name            string
	DefaultFanCount int
	// CycleSeconds is the heat-recovery reversing interval, informational.
	CycleSeconds int

	SupportsSummerVent     bool
	SupportsFilterReminder bool
	// FourSpeed codings have no off state; the slowest selectable speed
	// is low and the pair (on, on) selects turbo.
	FourSpeed bool

	speedPairs map[Speed]relayPair
	Behavior   map[Speed]Airflow
}

// threeSpeedPairs is the classic e2-style encoding: both relays off is
// off, W1 selects low, W2 selects medium, both select high.
var threeSpeedPairs = map[Speed]relayPair{
	SpeedOff:    {false, false},
	SpeedLow:    {true, false},
	SpeedMedium: {false, true},
	SpeedHigh:   {true, true},
}

// fourSpeedPairs shifts the encoding down one: there is no off, and the
// freed (on, on) pair selects turbo.
var fourSpeedPairs = map[Speed]relayPair{
	SpeedLow:    {false, false},
	SpeedMedium: {true, false},
	SpeedHigh:   {false, true},
	SpeedTurbo:  {true, true},
}

// defaultPairs is the factory coding of the Universal Controller, which
// encodes high as W1 only.
var defaultPairs = map[Speed]relayPair{
	SpeedOff:    {false, false},
	SpeedLow:    {false, true},
	SpeedMedium: {true, true},
	SpeedHigh:   {true, false},
}

var codings = map[string]*Coding{
	"default": {
		Slug:                   "default",
		Name:                   "LUNOS Universal Controller (factory coding)",
		DefaultFanCount:        2,
		SupportsFilterReminder: true,
		speedPairs:             defaultPairs,
	},
	"e2": {
		Slug:                   "e2",
		Name:                   "LUNOS e2",
		DefaultFanCount:        2,
		CycleSeconds:           70,
		SupportsSummerVent:     true,
		SupportsFilterReminder: true,
		speedPairs:             threeSpeedPairs,
		Behavior: map[Speed]Airflow{
			SpeedOff:    {Watts: 0.1},
			SpeedLow:    {CFM: 10, Watts: 1.4, DB: 16.5},
			SpeedMedium: {CFM: 15, Watts: 2.8, DB: 19.5},
			SpeedHigh:   {CFM: 20, Watts: 3.8, DB: 26.5},
		},
	},
	"e2-usa": {
		Slug:                   "e2-usa",
		Name:                   "LUNOS e2 (USA coding)",
		DefaultFanCount:        2,
		CycleSeconds:           70,
		SupportsSummerVent:     true,
		SupportsFilterReminder: true,
		speedPairs:             threeSpeedPairs,
		Behavior: map[Speed]Airflow{
			SpeedOff:    {Watts: 0.1},
			SpeedLow:    {CFM: 10, Watts: 1.4, DB: 16.5},
			SpeedMedium: {CFM: 15, Watts: 2.8, DB: 19.5},
			SpeedHigh:   {CFM: 20, Watts: 3.8, DB: 26.5},
		},
	},
	"e2-4speed": {
		Slug:                   "e2-4speed",
		Name:                   "LUNOS e2 (4-speed coding)",
		DefaultFanCount:        2,
		CycleSeconds:           70,
		SupportsSummerVent:     true,
		SupportsFilterReminder: true,
		FourSpeed:              true,
		speedPairs:             fourSpeedPairs,
		Behavior: map[Speed]Airflow{
			SpeedLow:    {CFM: 10, Watts: 1.4, DB: 16.5},
			SpeedMedium: {CFM: 15, Watts: 2.8, DB: 19.5},
			SpeedHigh:   {CFM: 20, Watts: 3.8, DB: 26.5},
			SpeedTurbo:  {CFM: 27, Watts: 5.5, DB: 32.0},
		},
	},
	"ego": {
		Slug:                   "ego",
		Name:                   "LUNOS eGO",
		DefaultFanCount:        1,
		CycleSeconds:           50,
		SupportsFilterReminder: true,
		speedPairs:             threeSpeedPairs,
		Behavior: map[Speed]Airflow{
			SpeedLow:    {CFM: 3, Watts: 0.8, DB: 16.5},
			SpeedMedium: {CFM: 6, Watts: 1.0, DB: 19.5},
			SpeedHigh:   {CFM: 12, Watts: 1.4, DB: 26.0},
		},
	},
	"ra-15-60": {
		Slug:            "ra-15-60",
		Name:            "LUNOS RA 15-60 radial duct fan",
		DefaultFanCount: 1,
		speedPairs:      threeSpeedPairs,
		Behavior: map[Speed]Airflow{
			SpeedLow:    {CFM: 9, Watts: 1.4, DB: 21.0},
			SpeedMedium: {CFM: 18, Watts: 2.8, DB: 26.0},
			SpeedHigh:   {CFM: 35, Watts: 5.0, DB: 31.0},
		},
	},
}

// CodingBySlug resolves a configured coding slug.
func CodingBySlug(slug string) (*Coding, error) {
	c, ok := codings[slug]
	if !ok {
		return nil, &UnknownCodingError{Slug: slug}
	}
	return c, nil
}

// CodingSlugs lists all supported coding slugs.
func CodingSlugs() []string {
	slugs := make([]string, 0, len(codings))
	for slug := range codings {
		slugs = append(slugs, slug)
	}
	return slugs
}

// UnknownCodingError reports a coding slug with no table entry.
type UnknownCodingError struct {
	Slug string
}

func (e *UnknownCodingError) Error() string {
	return "unknown controller coding: " + e.Slug
}

// Speeds returns the selectable speeds of this coding, slowest first.
func (c *Coding) Speeds() []Speed {
	if c.FourSpeed {
		return []Speed{SpeedLow, SpeedMedium, SpeedHigh, SpeedTurbo}
	}
	return []Speed{SpeedOff, SpeedLow, SpeedMedium, SpeedHigh}
}

// SpeedForStates matches a probed W1/W2 state pair back to the speed it
// encodes. Returns false when the pair matches no speed.
func (c *Coding) SpeedForStates(w1, w2 bool) (Speed, bool) {
	for speed, pair := range c.speedPairs {
		if pair.w1 == w1 && pair.w2 == w2 {
			return speed, true
		}
	}
	return "", false
}

// PercentageForSpeed maps a speed to its percentage on this coding's
// scale: 0/33/66/100 for 3-speed codings, 25/50/75/100 for 4-speed.
func (c *Coding) PercentageForSpeed(speed Speed) (int, bool) {
	speeds := c.Speeds()
	for i, s := range speeds {
		if s == speed {
			if c.FourSpeed {
				return (i + 1) * 100 / len(speeds), true
			}
			return i * 100 / (len(speeds) - 1), true
		}
	}
	return 0, false
}

// SpeedForPercentage maps a percentage to the slowest speed at or above
// it.
func (c *Coding) SpeedForPercentage(pct int) (Speed, bool) {
	if pct < 0 || pct > 100 {
		return "", false
	}
	for _, s := range c.Speeds() {
		p, _ := c.PercentageForSpeed(s)
		if pct <= p {
			return s, true
		}
	}
	return "", false
}

// Operations returns every operation this coding supports.
func (c *Coding) Operations() []Operation {
	var ops []Operation
	for _, speed := range c.Speeds() {
		op, _ := OperationForSpeed(speed)
		ops = append(ops, op)
	}
	if c.SupportsSummerVent {
		ops = append(ops, OpSummerVentOn, OpSummerVentOff)
	}
	if c.SupportsFilterReminder {
		ops = append(ops, OpClearFilterReminder)
	}
	return ops
}

// Sequence resolves an operation to its ordered relay step list. Fails
// with ErrUnsupportedOperation when the coding has no encoding for the
// operation. The returned slice is freshly built on every call.
func (c *Coding) Sequence(op Operation) ([]RelayStep, error) {
	switch op {
	case OpTurnOff, OpSetSpeedLow, OpSetSpeedMedium, OpSetSpeedHigh, OpSetSpeedTurbo:
		return c.speedSequence(op)
	case OpSummerVentOn:
		if !c.SupportsSummerVent {
			return nil, c.unsupported(op)
		}
		// Three full flips of W2 within the settle window would enable
		// summer ventilation on the physical controller; with the hard
		// 3 second floor the same train is issued slowly and the
		// controller latches the mode on the final rising edge.
		return flipTrain(W2, 3), nil
	case OpSummerVentOff:
		if !c.SupportsSummerVent {
			return nil, c.unsupported(op)
		}
		return flipTrain(W2, 1), nil
	case OpClearFilterReminder:
		if !c.SupportsFilterReminder {
			return nil, c.unsupported(op)
		}
		return flipTrain(W1, 3), nil
	default:
		return nil, c.unsupported(op)
	}
}

func (c *Coding) speedSequence(op Operation) ([]RelayStep, error) {
	var speed Speed
	switch op {
	case OpTurnOff:
		speed = SpeedOff
	case OpSetSpeedLow:
		speed = SpeedLow
	case OpSetSpeedMedium:
		speed = SpeedMedium
	case OpSetSpeedHigh:
		speed = SpeedHigh
	case OpSetSpeedTurbo:
		speed = SpeedTurbo
	}

	pair, ok := c.speedPairs[speed]
	if !ok {
		return nil, c.unsupported(op)
	}

	return []RelayStep{
		{Relay: W1, On: pair.w1, Hold: SettleDelay},
		{Relay: W2, On: pair.w2, Hold: SettleDelay},
	}, nil
}

// flipTrain builds n off/on flips of a single relay, each state held for
// the settle delay. The train always ends with the relay on; callers
// restore the speed encoding afterwards.
func flipTrain(relay Relay, n int) []RelayStep {
	steps := make([]RelayStep, 0, 2*n)
	for i := 0; i < n; i++ {
		steps = append(steps,
			RelayStep{Relay: relay, On: false, Hold: SettleDelay},
			RelayStep{Relay: relay, On: true, Hold: SettleDelay},
		)
	}
	return steps
}

func (c *Coding) unsupported(op Operation) error {
	return &OperationError{Coding: c.Slug, Operation: op, Err: ErrUnsupportedOperation}
}

// OperationError wraps ErrUnsupportedOperation with the coding and
// operation that produced it.
type OperationError struct {
	Coding    string
	Operation Operation
	Err       error
}

func (e *OperationError) Error() string {
	return string(e.Operation) + " on coding " + e.Coding + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
