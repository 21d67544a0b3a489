package generator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	sbsmodels "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Models"
)

// Options configures a Generator. Zero values fall back to defaults.
type Options struct {
	Devices   []string
	Rand      *rand.Rand
	Now       func() time.Time
	SessionID string
}

// Generator synthesizes readings for one session. It is not safe for concurrent use.
type Generator struct {
	devices   []string
	rnd       *rand.Rand
	now       func() time.Time
	sessionID string
	issued    uint64
}

// New creates a generator with a fresh session ID unless one is given
func New(opts Options) (*Generator, error) {
	if len(opts.Devices) == 0 {
		return nil, fmt.Errorf("generator needs at least one device id")
	}
	g := &Generator{
		devices:   append([]string(nil), opts.Devices...),
		rnd:       opts.Rand,
		now:       opts.Now,
		sessionID: opts.SessionID,
	}
	if g.rnd == nil {
		g.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.sessionID == "" {
		g.sessionID = uuid.NewString()
	}
	return g, nil
}

// SessionID returns the process-lifetime session identifier
func (g *Generator) SessionID() string {
	return g.sessionID
}

// Issued returns how many readings have been generated
func (g *Generator) Issued() uint64 {
	return g.issued
}

// SelectCategory draws r uniformly from [0, 1) and returns the band containing it
func (g *Generator) SelectCategory() Band {
	r := g.rnd.Float64()
	if b, ok := BandFor(r); ok {
		return b
	}
	// unreachable while Bands covers [0, 1)
	return Bands[len(Bands)-1]
}

// GenerateReading creates a reading of the given kind
func (g *Generator) GenerateReading(kind sbsmodels.ParameterKind) (sbsmodels.Reading, error) {
	band, ok := BandForKind(kind)
	if !ok {
		return sbsmodels.Reading{}, fmt.Errorf("%w: %q", sbsmodels.ErrUnknownParameter, kind)
	}

	reading := sbsmodels.Reading{
		DeviceValue:     band.Min + g.rnd.Intn(band.Max-band.Min+1),
		DeviceParameter: band.Kind,
		DeviceID:        g.devices[g.rnd.Intn(len(g.devices))],
		DateTime:        g.now().Format(sbsmodels.DateTimeLayout),
		MessageID:       fmt.Sprintf("%s-%d", g.sessionID, g.issued),
		SessionID:       g.sessionID,
	}
	g.issued++
	return reading, nil
}

// Next selects a category and generates a reading for it
func (g *Generator) Next() (Band, sbsmodels.Reading) {
	band := g.SelectCategory()
	// band.Kind always comes from Bands, so GenerateReading cannot fail here
	reading, _ := g.GenerateReading(band.Kind)
	return band, reading
}
