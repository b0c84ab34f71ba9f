package entity

import (
	"sort"
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// UserResolver maps an application uid to the user that owns it.
type UserResolver func(uid int32) int32

// usersPerRange is the width of the uid range allotted to each user.
const usersPerRange = 200000

// DefaultUserOf assigns uids to users by fixed-width ranges.
func DefaultUserOf(uid int32) int32 {
	if uid < 0 {
		return stats.NoUID
	}
	return uid / usersPerRange
}

// UIDEntity sweeps every known application through the per-application
// entities and records one APP line per uid.
type UIDEntity struct {
	base
	uids   map[int32]struct{}
	apps   []Entity
	user   *UserEntity
	userOf UserResolver
	route  func(stats.Cause) Entity
	power  uidPower
}

func newUID(env *Env, user *UserEntity, userOf UserResolver, route func(stats.Cause) Entity, apps ...Entity) *UIDEntity {
	if userOf == nil {
		userOf = DefaultUserOf
	}
	return &UIDEntity{
		base:   base{env: env, kind: stats.ConsumptionApp},
		uids:   map[int32]struct{}{},
		apps:   apps,
		user:   user,
		userOf: userOf,
		route:  route,
		power:  uidPower{},
	}
}

// Register adds uid to the set swept by Calculate.
func (e *UIDEntity) Register(uid int32) {
	if uid <= stats.NoUID {
		return
	}
	e.uids[uid] = struct{}{}
}

// UIDs returns the registered applications in ascending order.
func (e *UIDEntity) UIDs() []int32 {
	out := make([]int32, 0, len(e.uids))
	for uid := range e.uids {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UserOf resolves the owning user of uid.
func (e *UIDEntity) UserOf(uid int32) int32 {
	return e.userOf(uid)
}

// Calculate ignores its argument and sweeps every registered uid.
func (e *UIDEntity) Calculate(int32) {
	e.user.beginPass()
	for _, uid := range e.UIDs() {
		var total float64
		for _, app := range e.apps {
			app.Calculate(uid)
			total += app.EntityPowerMah(uid)
		}
		e.power[uid] = total
		userID := e.userOf(uid)
		e.env.Ledger.Add(total)
		e.env.Ledger.Append(stats.Info{
			Type:     stats.ConsumptionApp,
			UID:      uid,
			UserID:   userID,
			PowerMah: total,
		})
		e.user.AggregateUserPowerMah(userID, total)
	}
}

func (e *UIDEntity) EntityPowerMah(uid int32) float64 {
	return e.power[uid]
}

func (e *UIDEntity) StatsPowerMah(cause stats.Cause, uid int32) float64 {
	if owner := e.route(cause); owner != nil {
		return owner.StatsPowerMah(cause, uid)
	}
	return 0
}

func (e *UIDEntity) ActiveTimeMs(cause stats.Cause, uid int32, level int16) int64 {
	if owner := e.route(cause); owner != nil {
		return owner.ActiveTimeMs(cause, uid, level)
	}
	return 0
}

func (e *UIDEntity) Count(cause stats.Cause, uid int32) int64 {
	if owner := e.route(cause); owner != nil {
		return owner.Count(cause, uid)
	}
	return 0
}

// Reset zeroes power but keeps the registered uids.
func (e *UIDEntity) Reset() {
	e.power.reset()
}

func (e *UIDEntity) DumpInfo(b *strings.Builder, _ int32) {
	for _, uid := range e.UIDs() {
		dumpLine(b, "uid %d (user %d): %.4fmAh", uid, e.userOf(uid), e.power[uid])
		for _, app := range e.apps {
			app.DumpInfo(b, uid)
		}
	}
}

// UserEntity rolls application power up per user. It never contributes to
// the ledger total.
type UserEntity struct {
	base
	power uidPower
}

func newUser(env *Env) *UserEntity {
	return &UserEntity{base: base{env: env, kind: stats.ConsumptionUser}, power: uidPower{}}
}

// AggregateUserPowerMah adds powerMah to userID's running figure.
func (e *UserEntity) AggregateUserPowerMah(userID int32, powerMah float64) {
	e.power[userID] += powerMah
}

// beginPass zeroes every user figure so repeated passes do not accumulate.
func (e *UserEntity) beginPass() {
	e.power.reset()
}

func (e *UserEntity) Calculate(int32) {
	for _, userID := range sortedKeys(e.power) {
		e.env.Ledger.Append(stats.Info{
			Type:     stats.ConsumptionUser,
			UID:      stats.NoUID,
			UserID:   userID,
			PowerMah: e.power[userID],
		})
	}
}

func (e *UserEntity) EntityPowerMah(userID int32) float64 {
	return e.power[userID]
}

func (e *UserEntity) Reset() {
	e.power.reset()
}

func (e *UserEntity) DumpInfo(b *strings.Builder, _ int32) {
	for _, userID := range sortedKeys(e.power) {
		dumpLine(b, "user %d: %.4fmAh", userID, e.power[userID])
	}
}
