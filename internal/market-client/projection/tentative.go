package projection

import "github.com/radieske/chess-market-poc/pkg/contracts/models"

// AddTentativeGame insere uma partida ainda não confirmada pelo store
func (p *Projection) AddTentativeGame(g models.Game) error {
	if _, ok := p.gameIndex[g.ID]; ok {
		return ErrDuplicateID
	}
	p.appendGame(g)
	p.pending[g.ID] = tentative{kind: kindGame}
	return nil
}

// AddTentativeBet insere uma aposta ainda não confirmada pelo store.
// Sem amostra no histórico: ela vem com a confirmação.
func (p *Projection) AddTentativeBet(b models.Bet) error {
	if _, ok := p.betGame[b.ID]; ok {
		return ErrDuplicateID
	}
	p.appendBet(b)
	p.pending[b.ID] = tentative{kind: kindBet, gameID: b.GameID}
	return nil
}

// SetTentativeUser registra uma alteração otimista do usuário sob writeID.
// Várias alterações do mesmo usuário podem estar em voo: o registro exibido é
// a última versão do store com todas elas aplicadas, em ordem.
// Retorna o registro a gravar: a versão do store com só esta alteração.
func (p *Projection) SetTentativeUser(writeID, userID string, mutate func(*models.User)) (models.User, error) {
	if p.IsTentative(writeID) {
		return models.User{}, ErrDuplicateID
	}
	d, ok := p.drafts[userID]
	if !ok {
		cur, known := p.users[userID]
		if !known {
			return models.User{}, ErrUnknownUser
		}
		d = &userDraft{base: cur}
		p.drafts[userID] = d
	}
	d.writes = append(d.writes, userWrite{id: writeID, mutate: mutate})
	p.writeOwner[writeID] = userID
	p.recompute(userID)

	out := d.base
	mutate(&out)
	return out, nil
}

// ConfirmUser encerra a alteração writeID com a resposta do store.
// echo nil (store que não devolve o registro) incorpora a alteração à base.
// As demais alterações em voo continuam aplicadas por cima.
func (p *Projection) ConfirmUser(writeID string, echo *models.User) Outcome {
	userID, ok := p.writeOwner[writeID]
	if !ok {
		if echo == nil {
			return Duplicate
		}
		return p.applyUser(*echo)
	}
	d := p.drafts[userID]
	w := d.remove(writeID)
	delete(p.writeOwner, writeID)

	switch {
	case echo == nil:
		w.mutate(&d.base)
	case echo.Version >= d.base.Version:
		d.base = *echo
	}
	p.recompute(userID)
	return Confirmed
}

// Rollback desfaz exatamente a alteração tentativa do id (partida, aposta
// ou writeID de usuário). Retorna false quando não há nada a desfazer.
func (p *Projection) Rollback(id string) bool {
	if userID, ok := p.writeOwner[id]; ok {
		p.drafts[userID].remove(id)
		delete(p.writeOwner, id)
		p.recompute(userID)
		return true
	}

	t, ok := p.pending[id]
	if !ok {
		return false
	}
	delete(p.pending, id)

	switch t.kind {
	case kindGame:
		p.removeGame(id)
	case kindBet:
		p.removeBet(t.gameID, id)
	}
	return true
}

// recompute reaplica as alterações em voo sobre a base do usuário
func (p *Projection) recompute(userID string) {
	d, ok := p.drafts[userID]
	if !ok {
		return
	}
	u := d.base
	for _, w := range d.writes {
		w.mutate(&u)
	}
	p.putUser(u)
	if len(d.writes) == 0 {
		delete(p.drafts, userID)
	}
}

func (d *userDraft) remove(writeID string) userWrite {
	for i, w := range d.writes {
		if w.id == writeID {
			d.writes = append(d.writes[:i:i], d.writes[i+1:]...)
			return w
		}
	}
	return userWrite{mutate: func(*models.User) {}}
}

func (p *Projection) removeGame(id string) {
	i, ok := p.gameIndex[id]
	if !ok {
		return
	}
	p.games = append(p.games[:i:i], p.games[i+1:]...)
	delete(p.gameIndex, id)
	for j := i; j < len(p.games); j++ {
		p.gameIndex[p.games[j].ID] = j
	}
}

func (p *Projection) removeBet(gameID, id string) {
	list := p.bets[gameID]
	for i := range list {
		if list[i].ID == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(p.bets, gameID)
	} else {
		p.bets[gameID] = list
	}
	delete(p.betGame, id)
}
