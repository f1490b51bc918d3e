package domain

import "time"

type Option struct {
	ID   string `json:"_id"`
	Text string `json:"text"`
}

// Poll guarda la pregunta, las opciones y un conteo paralelo: Votes[i] corresponde a Options[i].
type Poll struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Question  string    `json:"question"`
	Options   []Option  `json:"options"`
	Votes     []int     `json:"votes"`
	Voters    []string  `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingVote es el voto que espera confirmacion por email. Hay a lo sumo uno por encuesta.
type PendingVote struct {
	PollID   string    `json:"poll_id"`
	Email    string    `json:"email"`
	OptionID string    `json:"option_id"`
	Secret   string    `json:"-"`
	IssuedAt time.Time `json:"issued_at"`
}

// OptionAt resuelve una seleccion posicional (base 1).
func (p *Poll) OptionAt(position int) (Option, bool) {
	if position < 1 || position > len(p.Options) {
		return Option{}, false
	}
	return p.Options[position-1], true
}

// IndexOf devuelve el indice (base 0) de la opcion con ese ID, o -1.
func (p *Poll) IndexOf(optionID string) int {
	for i, opt := range p.Options {
		if opt.ID == optionID {
			return i
		}
	}
	return -1
}

func (p *Poll) HasVoted(email string) bool {
	for _, v := range p.Voters {
		if v == email {
			return true
		}
	}
	return false
}

func (p *Poll) TotalVotes() int {
	total := 0
	for _, v := range p.Votes {
		total += v
	}
	return total
}

// Winner devuelve la primera opcion (en orden de lista) con el maximo de votos.
// tie indica que otra opcion comparte ese maximo; solo se reporta una.
func (p *Poll) Winner() (winner *Option, votes int, tie bool) {
	best := -1
	for i, v := range p.Votes {
		if i >= len(p.Options) {
			break
		}
		switch {
		case best == -1 || v > p.Votes[best]:
			best = i
			tie = false
		case v == p.Votes[best]:
			tie = true
		}
	}
	if best == -1 {
		return nil, 0, false
	}
	opt := p.Options[best]
	return &opt, p.Votes[best], tie
}
