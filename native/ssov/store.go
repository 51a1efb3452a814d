package ssov

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ssovstate "ssov/core/state"
)

// store is the vault's typed view over one state transaction.
type store struct {
	state  *ssovstate.Manager
	prefix string
}

func newStore(state *ssovstate.Manager, vault string) *store {
	return &store{state: state, prefix: "ssov/" + vault + "/"}
}

func (s *store) key(parts ...interface{}) []byte {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += "/"
		}
		switch v := p.(type) {
		case *uint256.Int:
			k += v.Hex()
		case common.Hash:
			k += v.Hex()
		default:
			k += fmt.Sprint(v)
		}
	}
	return []byte(k)
}

func (s *store) currentEpoch() (uint64, error) {
	var n uint64
	if _, err := s.state.KVGet(s.key("current"), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *store) setCurrentEpoch(n uint64) error {
	return s.state.KVPut(s.key("current"), n)
}

// epoch loads epoch n, returning an empty record when none exists.
func (s *store) epoch(n uint64) (*Epoch, error) {
	ep := new(Epoch)
	ok, err := s.state.KVGet(s.key("epoch", n), ep)
	if err != nil {
		return nil, err
	}
	if !ok {
		ep = &Epoch{Number: n}
	}
	ep.normalize()
	return ep, nil
}

func (s *store) putEpoch(ep *Epoch) error {
	ep.normalize()
	return s.state.KVPut(s.key("epoch", ep.Number), ep)
}

func (s *store) strike(epoch uint64, strike *uint256.Int) (*StrikeState, error) {
	st := new(StrikeState)
	if _, err := s.state.KVGet(s.key("strike", epoch, strike), st); err != nil {
		return nil, err
	}
	st.normalize()
	return st, nil
}

func (s *store) putStrike(epoch uint64, strike *uint256.Int, st *StrikeState) error {
	st.normalize()
	return s.state.KVPut(s.key("strike", epoch, strike), st)
}

func (s *store) position(epoch uint64, hash common.Hash) (*Position, error) {
	pos := new(Position)
	if _, err := s.state.KVGet(s.key("position", epoch, hash), pos); err != nil {
		return nil, err
	}
	pos.normalize()
	return pos, nil
}

func (s *store) putPosition(epoch uint64, hash common.Hash, pos *Position) error {
	pos.normalize()
	return s.state.KVPut(s.key("position", epoch, hash), pos)
}

func (s *store) accumulators() (*Accumulators, error) {
	acc := new(Accumulators)
	if _, err := s.state.KVGet(s.key("accumulators"), acc); err != nil {
		return nil, err
	}
	acc.normalize()
	return acc, nil
}

func (s *store) putAccumulators(acc *Accumulators) error {
	acc.normalize()
	return s.state.KVPut(s.key("accumulators"), acc)
}

// receivables lists expired epochs that are still owed rewards, oldest first.
func (s *store) receivables() ([]uint64, error) {
	var list []uint64
	if _, err := s.state.KVGet(s.key("receivables"), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *store) setReceivables(list []uint64) error {
	if len(list) == 0 {
		return s.state.KVDelete(s.key("receivables"))
	}
	return s.state.KVPut(s.key("receivables"), list)
}

func (s *store) paused() (bool, error) {
	var paused bool
	if _, err := s.state.KVGet(s.key("paused"), &paused); err != nil {
		return false, err
	}
	return paused, nil
}

func (s *store) setPaused(paused bool) error {
	return s.state.KVPut(s.key("paused"), paused)
}

func (s *store) roleName(name string) string { return s.prefix + "role/" + name }

func (s *store) address(name string) (common.Address, error) {
	members, err := s.state.RoleMembers(s.roleName(name))
	if err != nil {
		return common.Address{}, err
	}
	if len(members) == 0 {
		return common.Address{}, nil
	}
	return members[0], nil
}

// setAddress replaces the single holder of the named role.
func (s *store) setAddress(name string, addr common.Address) error {
	members, err := s.state.RoleMembers(s.roleName(name))
	if err != nil {
		return err
	}
	for _, m := range members {
		if err := s.state.RemoveRole(s.roleName(name), m); err != nil {
			return err
		}
	}
	return s.state.SetRole(s.roleName(name), addr)
}

func (s *store) hasRole(name string, addr common.Address) bool {
	return s.state.HasRole(s.roleName(name), addr)
}
