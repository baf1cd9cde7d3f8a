package conversation

import "time"

// Pacing controls the typewriter: a base per-character delay plus
// punctuation holds layered on top. Hold factors scale the base delay, so
// a faster SpeedMult shortens holds proportionally.
type Pacing struct {
	TextSpeed   float64 `yaml:"text_speed" json:"text_speed"` // seconds per revealed character
	SpeedMult   float64 `yaml:"speed_mult" json:"speed_mult"` // user speed setting; higher is faster
	Period      float64 `yaml:"period" json:"period"`
	Ellipsis    float64 `yaml:"ellipsis" json:"ellipsis"` // the final dot of a dot run
	Exclamation float64 `yaml:"exclamation" json:"exclamation"`
	Question    float64 `yaml:"question" json:"question"`
	Comma       float64 `yaml:"comma" json:"comma"`
	Colon       float64 `yaml:"colon" json:"colon"`
	Semicolon   float64 `yaml:"semicolon" json:"semicolon"`
	EmDash      float64 `yaml:"em_dash" json:"em_dash"`
	Hyphen      float64 `yaml:"hyphen" json:"hyphen"`
}

// DefaultPacing is the tuning the engine ships with.
func DefaultPacing() Pacing {
	return Pacing{
		TextSpeed:   0.03,
		SpeedMult:   1,
		Period:      8,
		Ellipsis:    3,
		Exclamation: 8,
		Question:    8,
		Comma:       3,
		Colon:       4,
		Semicolon:   4,
		EmDash:      6,
		Hyphen:      1.5,
	}
}

func (p Pacing) orDefault() Pacing {
	if p.TextSpeed <= 0 {
		return DefaultPacing()
	}
	return p
}

// interval is the base delay between two revealed characters.
func (p Pacing) interval() time.Duration {
	mult := p.SpeedMult
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(p.TextSpeed / mult * float64(time.Second))
}

// stepAfter is the delay owed after revealing runes[i]: the base interval
// plus any punctuation hold.
func (p Pacing) stepAfter(runes []rune, i int) time.Duration {
	base := p.interval()
	if factor := p.holdFactor(runes, i); factor > 0 {
		return base + time.Duration(float64(base)*factor)
	}
	return base
}

// holdFactor picks the punctuation factor for runes[i]. A dot followed by
// another dot is inside an ellipsis run and holds nothing; the run's last
// dot holds at the ellipsis factor instead of the sentence factor.
func (p Pacing) holdFactor(runes []rune, i int) float64 {
	switch runes[i] {
	case '.':
		if i+1 < len(runes) && runes[i+1] == '.' {
			return 0
		}
		if i > 0 && runes[i-1] == '.' {
			return p.Ellipsis
		}
		return p.Period
	case '!':
		return p.Exclamation
	case '?':
		return p.Question
	case ',':
		return p.Comma
	case ':':
		return p.Colon
	case ';':
		return p.Semicolon
	case '—':
		return p.EmDash
	case '-':
		return p.Hyphen
	}
	return 0
}
