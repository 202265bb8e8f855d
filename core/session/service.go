package session

import (
	"context"
	"net/mail"
	"sync"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/classroom/core"
)

var welcomeTmpl = template.Must(template.New("welcome").Parse(
	`Hello {{.Email}},

Your {{.Role}} account is ready. Sign in through the {{.Role}} portal to get started.
`))

// Manager owns the single authenticated User.
//
// Every login-like operation runs as a two-phase transaction: the Gateway authenticates (or registers)
// the Identity, then its RoleBinding is verified (or created). The User is only committed when both phases
// succeed, otherwise a compensating sign-out is issued before the error is returned.
type Manager struct {
	gw       core.Gateway
	validate *validator.Validate
	logger   core.Logger
	mailSvc  core.EmailService // optional

	mu      sync.RWMutex
	user    *User
	loading bool
}

func NewManager(gw core.Gateway, validate *validator.Validate, logger core.Logger, mailSvc core.EmailService) *Manager {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Manager{
		gw:       gw,
		validate: validate,
		logger:   logger,
		mailSvc:  mailSvc,
		loading:  true,
	}
}

// User returns the current session User, ok is false when nobody is signed in.
func (m *Manager) User() (usr User, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return User{}, false
	}
	return *m.user, true
}

// Loading reports whether the session has not been restored yet.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

func (m *Manager) setUser(usr *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = usr
	m.loading = false
}

// SignUp registers a new account and binds it to role.
// An account never survives without its RoleBinding: if the binding cannot be created the new
// Identity is signed back out and *RoleBindingFailed is returned.
func (m *Manager) SignUp(ctx context.Context, email, password string, role Role) (User, error) {
	na := NewAccount{Email: email, Password: password, Role: role}
	if err := na.Validate(m.validate); err != nil {
		return User{}, err
	}

	// phase 1: register
	ident, err := m.gw.Register(ctx, na.Email, na.Password, map[string]string{"role": na.Role.String()})
	if err != nil {
		return User{}, errors.Wrap(err, "registering")
	}

	// phase 2: bind role
	binding := RoleBinding{UserID: ident.ID, Role: na.Role}
	if _, err = m.gw.Insert(ctx, core.RelationUserRoles, binding.record()); err != nil {
		m.compensate(ctx, "signUp", ident, err)
		return User{}, &RoleBindingFailed{UserID: ident.ID, Err: err}
	}

	usr := m.commit(ident, na.Role)
	m.sendWelcome(usr)
	return usr, nil
}

// SignIn authenticates and verifies that the stored Role is the requested one.
// A credential pair is scoped to one role per attempt: a teacher cannot sign in through the student portal.
func (m *Manager) SignIn(ctx context.Context, email, password string, role Role) (User, error) {
	creds := Credentials{Email: email, Password: password, Role: role}
	if err := creds.Validate(m.validate); err != nil {
		return User{}, err
	}

	// phase 1: authenticate
	ident, err := m.gw.Authenticate(ctx, creds.Email, creds.Password)
	if err != nil {
		return User{}, errors.Wrap(err, "authenticating")
	}

	// phase 2: verify role
	binding, err := m.lookupRole(ctx, ident.ID)
	if err != nil {
		m.compensate(ctx, "signIn", ident, err)
		return User{}, &RoleLookupFailed{UserID: ident.ID, Err: err}
	}
	if binding.Role != creds.Role {
		mismatch := &RoleMismatch{Expected: creds.Role, Actual: binding.Role}
		m.compensate(ctx, "signIn", ident, mismatch)
		return User{}, mismatch
	}

	return m.commit(ident, binding.Role), nil
}

// SignOut ends the Gateway session. The local User is cleared even if the Gateway fails.
func (m *Manager) SignOut(ctx context.Context) error {
	usr, _ := m.User()
	err := m.gw.EndSession(ctx)
	m.setUser(nil)
	if err != nil {
		m.logger.Error("ending session", err, usr)
		return errors.Wrap(err, "ending session")
	}
	m.logger.Info("signed out", usr)
	return nil
}

// CheckUser restores an existing Gateway session. It is safe to call any number of times.
// A session whose RoleBinding cannot be read is treated as invalid and torn down.
func (m *Manager) CheckUser(ctx context.Context) (usr User, ok bool, err error) {
	ident, err := m.gw.CurrentIdentity(ctx)
	if err != nil {
		m.setUser(nil)
		if errors.Is(err, core.ErrNoSession) {
			return User{}, false, nil
		}
		return User{}, false, errors.Wrap(err, "getting current identity")
	}

	binding, err := m.lookupRole(ctx, ident.ID)
	if err != nil {
		m.compensate(ctx, "checkUser", ident, err)
		return User{}, false, &RoleLookupFailed{UserID: ident.ID, Err: err}
	}

	return m.commit(ident, binding.Role), true, nil
}

func (m *Manager) lookupRole(ctx context.Context, userID string) (RoleBinding, error) {
	recs, err := m.gw.Query(ctx, core.RelationUserRoles, core.Filter{"user_id": userID})
	if err != nil {
		return RoleBinding{}, errors.Wrap(err, "querying role binding")
	}
	if len(recs) == 0 {
		return RoleBinding{}, ErrRoleBindingNotFound
	}
	role, ok := ParseRole(recs[0].String("role"))
	if !ok {
		return RoleBinding{}, errors.Wrapf(ErrInvalidRole, "%q", recs[0].String("role"))
	}
	return RoleBinding{UserID: userID, Role: role}, nil
}

// commit is the only place a User gets assigned.
func (m *Manager) commit(ident core.Identity, role Role) User {
	usr := User{ID: ident.ID, Email: ident.Email, Role: role}
	m.setUser(&usr)
	return usr
}

// compensate undoes phase 1 of a failed transaction: the Gateway session is ended and the local User cleared.
func (m *Manager) compensate(ctx context.Context, op string, ident core.Identity, cause error) {
	usr := User{ID: ident.ID, Email: ident.Email}
	m.logger.Warn(
		"compensating sign-out: "+op,
		map[string]interface{}{"op": op, "cause": cause.Error()},
		usr,
	)
	if err := m.gw.EndSession(ctx); err != nil {
		m.logger.Error("compensating sign-out failed: "+op, err, usr)
	}
	m.setUser(nil)
}

func (m *Manager) sendWelcome(usr User) {
	if m.mailSvc == nil {
		return
	}
	m.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: usr.Email}},
		Subject:      "Welcome!",
		Template:     welcomeTmpl,
		TemplateData: usr,
	})
}
