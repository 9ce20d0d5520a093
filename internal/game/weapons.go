package game

// WeaponKind is the closed set of weapons.
type WeaponKind uint8

const (
	WeaponPistol WeaponKind = iota
	WeaponSMG
	WeaponShotgun
	WeaponRifle
	WeaponKnife
	weaponCount
)

// WeaponClass selects the firing state machine.
type WeaponClass uint8

const (
	ClassRanged WeaponClass = iota
	ClassMelee
)

// WeaponConfig is immutable at runtime.
type WeaponConfig struct {
	Kind         WeaponKind
	ID           string
	Name         string
	Class        WeaponClass
	FireRate     float64 // seconds between shots
	Damage       float64
	Ammo         int // magazine restored by reload
	MaxAmmo      int
	Spread       float64 // total cone width in radians
	BulletSpeed  float64
	BulletLife   float64
	BulletRadius float64
	Pellets      int
	MeleeRange   float64
	UnlockScore  int
	Color        string
}

// Weapons is indexed by WeaponKind.
var Weapons = [weaponCount]WeaponConfig{
	WeaponPistol: {
		Kind: WeaponPistol, ID: "pistol", Name: "Pistol", Class: ClassRanged,
		FireRate: 0.18, Damage: 40, Ammo: 30, MaxAmmo: 90,
		Spread: 0.04, BulletSpeed: 30, BulletLife: 1.2, BulletRadius: 0.15, Pellets: 1,
		Color: "#ffd54f",
	},
	WeaponSMG: {
		Kind: WeaponSMG, ID: "smg", Name: "SMG", Class: ClassRanged,
		FireRate: 0.08, Damage: 18, Ammo: 60, MaxAmmo: 180,
		Spread: 0.12, BulletSpeed: 32, BulletLife: 0.9, BulletRadius: 0.12, Pellets: 1,
		UnlockScore: 100, Color: "#4fc3f7",
	},
	WeaponShotgun: {
		Kind: WeaponShotgun, ID: "shotgun", Name: "Shotgun", Class: ClassRanged,
		FireRate: 0.7, Damage: 22, Ammo: 12, MaxAmmo: 36,
		Spread: 0.35, BulletSpeed: 26, BulletLife: 0.6, BulletRadius: 0.12, Pellets: 5,
		UnlockScore: 250, Color: "#ff8a65",
	},
	WeaponRifle: {
		Kind: WeaponRifle, ID: "rifle", Name: "Rifle", Class: ClassRanged,
		FireRate: 0.35, Damage: 90, Ammo: 10, MaxAmmo: 40,
		Spread: 0.01, BulletSpeed: 45, BulletLife: 1.5, BulletRadius: 0.15, Pellets: 1,
		UnlockScore: 500, Color: "#e040fb",
	},
	WeaponKnife: {
		Kind: WeaponKnife, ID: "knife", Name: "Knife", Class: ClassMelee,
		FireRate: 0.35, Damage: 55, MeleeRange: 2.2,
		Color: "#eeeeee",
	},
}

func (k WeaponKind) String() string {
	if k < weaponCount {
		return Weapons[k].ID
	}
	return "unknown"
}

// Config returns the catalog entry. ok is false for out-of-range kinds.
func (k WeaponKind) Config() (WeaponConfig, bool) {
	if k >= weaponCount {
		return WeaponConfig{}, false
	}
	return Weapons[k], true
}

// WeaponByID looks up a weapon by its string id.
func WeaponByID(id string) (WeaponConfig, bool) {
	for _, w := range Weapons {
		if w.ID == id {
			return w, true
		}
	}
	return WeaponConfig{}, false
}

// WeaponByIndex looks up a weapon by its select-slot index.
func WeaponByIndex(i int) (WeaponConfig, bool) {
	if i < 0 || i >= int(weaponCount) {
		return WeaponConfig{}, false
	}
	return Weapons[i], true
}

// UnlockedWeapons returns the weapons available at score.
func UnlockedWeapons(score int) []WeaponConfig {
	out := make([]WeaponConfig, 0, weaponCount)
	for _, w := range Weapons {
		if score >= w.UnlockScore {
			out = append(out, w)
		}
	}
	return out
}
