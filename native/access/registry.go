package access

import (
	"errors"
	"time"

	"predictchain/core/types"
	"predictchain/native/common"
)

// MaxCreators bounds the authorised creator list.
const MaxCreators = 32

const (
	EventCreatorAdded   = "access.creator_added"
	EventCreatorRemoved = "access.creator_removed"
)

var (
	ErrUnauthorized       = errors.New("access: unauthorized")
	ErrAlreadyInitialized = errors.New("access: already initialized")
	ErrNotInitialized     = errors.New("access: not initialized")
	ErrTooManyCreators    = errors.New("access: too many creators")
	ErrDuplicateCreator   = errors.New("access: creator already authorized")
	ErrCreatorNotFound    = errors.New("access: creator not found")

	errNilState = errors.New("access: state not configured")
)

// Registry is the singleton list of addresses allowed to create markets.
type Registry struct {
	Admin    [20]byte
	Creators [][20]byte
}

// Contains reports whether addr is an authorised creator.
func (r *Registry) Contains(addr [20]byte) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Creators {
		if c == addr {
			return true
		}
	}
	return false
}

type engineState interface {
	common.Journal
	AccessRegistry() (*Registry, bool, error)
	PutAccessRegistry(reg *Registry) error
	AppendEvent(evt *types.Event)
}

// Engine manages the creator registry.
type Engine struct {
	state engineState
	nowFn func() int64
}

func NewEngine() *Engine {
	return &Engine{nowFn: func() int64 { return time.Now().Unix() }}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Initialize stores an empty registry owned by admin.
func (e *Engine) Initialize(admin [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return common.Atomic(e.state, func() error {
		_, ok, err := e.state.AccessRegistry()
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyInitialized
		}
		return e.state.PutAccessRegistry(&Registry{Admin: admin})
	})
}

// Registry returns the stored registry.
func (e *Engine) Registry() (*Registry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	reg, ok, err := e.state.AccessRegistry()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return reg, nil
}

// IsCreator reports whether addr may create markets. An uninitialised
// registry authorises nobody.
func (e *Engine) IsCreator(addr [20]byte) (bool, error) {
	reg, err := e.Registry()
	if errors.Is(err, ErrNotInitialized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return reg.Contains(addr), nil
}

// AddCreator appends creator to the registry.
func (e *Engine) AddCreator(caller, creator [20]byte) error {
	reg, err := e.Registry()
	if err != nil {
		return err
	}
	if caller != reg.Admin {
		return ErrUnauthorized
	}
	if len(reg.Creators) >= MaxCreators {
		return ErrTooManyCreators
	}
	if reg.Contains(creator) {
		return ErrDuplicateCreator
	}
	return common.Atomic(e.state, func() error {
		reg.Creators = append(reg.Creators, creator)
		if err := e.state.PutAccessRegistry(reg); err != nil {
			return err
		}
		e.state.AppendEvent(creatorEvent(EventCreatorAdded, caller, creator, e.nowFn()))
		return nil
	})
}

// RemoveCreator drops creator, keeping the remaining entries in order.
func (e *Engine) RemoveCreator(caller, creator [20]byte) error {
	reg, err := e.Registry()
	if err != nil {
		return err
	}
	if caller != reg.Admin {
		return ErrUnauthorized
	}
	idx := -1
	for i, c := range reg.Creators {
		if c == creator {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrCreatorNotFound
	}
	return common.Atomic(e.state, func() error {
		reg.Creators = append(reg.Creators[:idx], reg.Creators[idx+1:]...)
		if err := e.state.PutAccessRegistry(reg); err != nil {
			return err
		}
		e.state.AppendEvent(creatorEvent(EventCreatorRemoved, caller, creator, e.nowFn()))
		return nil
	})
}
