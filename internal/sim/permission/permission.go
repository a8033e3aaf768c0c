package permission

import (
	"fmt"
	"sort"
	"strings"

	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/park"
	"parkcraft.ai/internal/sim/tuning"
)

// Permission is a capability a group may grant.
type Permission string

const (
	RideConstruction Permission = "ride_construction"
	RideProperties   Permission = "ride_properties"
	Guest            Permission = "guest"
	Cheat            Permission = "cheat"
	// AnyRide lifts the ownership requirement on referenced rides.
	AnyRide Permission = "any_ride"
)

var knownPermissions = map[Permission]struct{}{
	RideConstruction: {},
	RideProperties:   {},
	Guest:            {},
	Cheat:            {},
	AnyRide:          {},
}

var kindPermissions = map[action.Kind]Permission{
	action.KindTrackPlace:            RideConstruction,
	action.KindTrackRemove:           RideConstruction,
	action.KindRideCreate:            RideConstruction,
	action.KindRideEntranceExitPlace: RideConstruction,
	action.KindRideSetColourScheme:   RideProperties,
	action.KindGuestSetFlags:         Guest,
	action.KindParkSetCash:           Cheat,
}

// Required returns the permission a kind needs.
func Required(k action.Kind) (Permission, bool) {
	p, ok := kindPermissions[k]
	return p, ok
}

func validateKindPermissions() error {
	var missing []string
	for _, k := range action.SupportedKinds() {
		if _, ok := kindPermissions[k]; !ok {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("permission table: no permission for [%s]", strings.Join(missing, ","))
	}
	if len(kindPermissions) != len(action.SupportedKinds()) {
		return fmt.Errorf("permission table: %d entries for %d kinds", len(kindPermissions), len(action.SupportedKinds()))
	}
	return nil
}

// Decision is the outcome of a check. Reason is set only on denial.
type Decision struct {
	Allowed bool
	Reason  action.MessageID
	Args    map[string]string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason action.MessageID) Decision { return Decision{Reason: reason} }

// Result converts a denial into the failure reported to the caller.
func (d Decision) Result() action.Result {
	if d.Allowed {
		return action.OK()
	}
	r := action.Fail(action.StatusAuthorizationDenied, action.MsgActionRejected, d.Reason)
	for k, v := range d.Args {
		r = r.With(k, v)
	}
	return r
}

// Checker decides whether an actor may issue an action. It holds only the
// group table, which never changes after construction, so one Checker is
// safe to share between goroutines.
type Checker struct {
	groups       map[string]map[Permission]struct{}
	defaultGroup string
}

func NewChecker(groups []tuning.Group, defaultGroup string) (*Checker, error) {
	if err := validateKindPermissions(); err != nil {
		return nil, err
	}
	c := &Checker{groups: make(map[string]map[Permission]struct{}, len(groups)), defaultGroup: defaultGroup}
	for _, g := range groups {
		if _, dup := c.groups[g.Name]; dup {
			return nil, fmt.Errorf("permission: duplicate group %q", g.Name)
		}
		perms := make(map[Permission]struct{}, len(g.Permissions))
		for _, p := range g.Permissions {
			if _, ok := knownPermissions[Permission(p)]; !ok {
				return nil, fmt.Errorf("permission: group %q: unknown permission %q", g.Name, p)
			}
			perms[Permission(p)] = struct{}{}
		}
		c.groups[g.Name] = perms
	}
	if defaultGroup != "" {
		if _, ok := c.groups[defaultGroup]; !ok {
			return nil, fmt.Errorf("permission: default group %q is not defined", defaultGroup)
		}
	}
	return c, nil
}

// FromTuning builds a Checker from the tuning group table.
func FromTuning(t tuning.Tuning) (*Checker, error) {
	return NewChecker(t.Groups, t.DefaultGroup)
}

// HasGroup reports whether name is a defined group.
func (c *Checker) HasGroup(name string) bool {
	_, ok := c.groups[name]
	return ok
}

// DefaultGroup is the group assigned to actors that carry none.
func (c *Checker) DefaultGroup() string { return c.defaultGroup }

func (c *Checker) grants(group string, p Permission) bool {
	if group == "" {
		group = c.defaultGroup
	}
	perms, ok := c.groups[group]
	if !ok {
		return false
	}
	_, ok = perms[p]
	return ok
}

// Check reads w but never writes it. It does not run the action's query.
func (c *Checker) Check(actor action.Actor, w park.View, a action.Action) Decision {
	if actor.Kind == action.ActorServer {
		return allow()
	}
	rules := w.Rules()
	if a.Flags().Has(action.FlagEditorOnly) && !rules.Editor && !rules.Sandbox {
		return deny(action.MsgEditorOnly)
	}
	need, ok := kindPermissions[a.Kind()]
	if !ok || !c.grants(actor.Group, need) {
		d := deny(action.MsgNotPermitted)
		d.Args = map[string]string{"permission": string(need)}
		return d
	}
	if rules.Sandbox || c.grants(actor.Group, AnyRide) {
		return allow()
	}
	for _, id := range action.ReferencedRides(a, w) {
		// Unknown and foreign rides share one reason.
		ride, ok := w.Ride(id)
		if !ok || ride.Owner != actor.ID {
			return deny(action.MsgRideNotOwned)
		}
	}
	return allow()
}
