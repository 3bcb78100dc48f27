package miner

import "sort"

// Template defines a purchasable miner type.
type Template struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	Hash            float64 `json:"hash"`
	Watts           float64 `json:"watts"`
	MaxLevel        int     `json:"max_level"`
	BaseUpgradeCost float64 `json:"base_upgrade_cost"`
	BaseRepairRate  float64 `json:"base_repair_rate"`
}

// Room is one level of the player's mining room.
type Room struct {
	Level       int     `json:"level"`
	Name        string  `json:"name"`
	GridCols    int     `json:"grid_cols"`
	GridRows    int     `json:"grid_rows"`
	MaxSlots    int     `json:"max_slots"`
	MaxPower    float64 `json:"max_power"`
	UpgradeCost float64 `json:"upgrade_cost"`
}

// Catalog is the static game data: miner templates and room levels.
type Catalog struct {
	templates map[int]Template
	order     []int
	rooms     []Room
}

// NewCatalog builds a catalog. Rooms must be ordered by level starting at 0.
func NewCatalog(templates []Template, rooms []Room) *Catalog {
	c := &Catalog{
		templates: make(map[int]Template, len(templates)),
		rooms:     append([]Room(nil), rooms...),
	}
	for _, t := range templates {
		c.templates[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	sort.Ints(c.order)
	return c
}

// DefaultCatalog returns the stock templates and rooms.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultTemplates, defaultRooms)
}

var defaultTemplates = []Template{
	{ID: 1, Name: "Bunny Digger", Price: 10, Hash: 200, Watts: 8, MaxLevel: 5, BaseUpgradeCost: 1, BaseRepairRate: 0.1},
	{ID: 2, Name: "Bunny Planter", Price: 30, Hash: 600, Watts: 18, MaxLevel: 6, BaseUpgradeCost: 3, BaseRepairRate: 0.2},
	{ID: 3, Name: "Bunny Harvester", Price: 100, Hash: 2000, Watts: 50, MaxLevel: 7, BaseUpgradeCost: 10, BaseRepairRate: 0.5},
	{ID: 4, Name: "Tropic Titan", Price: 350, Hash: 7500, Watts: 180, MaxLevel: 8, BaseUpgradeCost: 35, BaseRepairRate: 1.0},
	{ID: 5, Name: "Bunny Ace", Price: 1200, Hash: 25000, Watts: 400, MaxLevel: 9, BaseUpgradeCost: 120, BaseRepairRate: 2.0},
	{ID: 6, Name: "Gold Packer", Price: 3000, Hash: 80000, Watts: 900, MaxLevel: 10, BaseUpgradeCost: 300, BaseRepairRate: 4.0},
	{ID: 7, Name: "Mystic Planter", Price: 5000, Hash: 200000, Watts: 1800, MaxLevel: 12, BaseUpgradeCost: 500, BaseRepairRate: 8.0},
	{ID: 8, Name: "Solar Planter", Price: 8000, Hash: 400000, Watts: 2800, MaxLevel: 13, BaseUpgradeCost: 800, BaseRepairRate: 12.0},
	{ID: 9, Name: "Cosmic Packer", Price: 10000, Hash: 800000, Watts: 4000, MaxLevel: 15, BaseUpgradeCost: 1000, BaseRepairRate: 20.0},
}

var defaultRooms = []Room{
	{Level: 0, Name: "Starter Farm", GridCols: 2, GridRows: 2, MaxSlots: 4, MaxPower: 150, UpgradeCost: 0},
	{Level: 1, Name: "Level 1 Farm", GridCols: 2, GridRows: 4, MaxSlots: 10, MaxPower: 300, UpgradeCost: 300},
	{Level: 2, Name: "Level 2 Farm", GridCols: 6, GridRows: 2, MaxSlots: 12, MaxPower: 420, UpgradeCost: 450},
}

// Template looks up a template by id.
func (c *Catalog) Template(id int) (Template, bool) {
	t, ok := c.templates[id]
	return t, ok
}

// Templates returns all templates ordered by id.
func (c *Catalog) Templates() []Template {
	out := make([]Template, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.templates[id])
	}
	return out
}

// Rooms returns all room levels.
func (c *Catalog) Rooms() []Room {
	return append([]Room(nil), c.rooms...)
}

// Room returns the room for a level, falling back to the first room for
// unknown levels.
func (c *Catalog) Room(level int) Room {
	if level >= 0 && level < len(c.rooms) {
		return c.rooms[level]
	}
	if len(c.rooms) == 0 {
		return Room{}
	}
	return c.rooms[0]
}

// NextRoom returns the room one level above level, if any.
func (c *Catalog) NextRoom(level int) (Room, bool) {
	next := level + 1
	if next < 0 || next >= len(c.rooms) {
		return Room{}, false
	}
	return c.rooms[next], true
}

// UsedWatts is the installed power draw of all devices, producing or not.
// It is what the room's power ceiling is checked against.
func (c *Catalog) UsedWatts(devices []Device) float64 {
	total := 0.0
	for _, d := range devices {
		if t, ok := c.templates[d.TemplateID]; ok {
			total += EffectiveWatts(t, d)
		}
	}
	return total
}

// ActiveTotals sums hash-rate and power draw over producing devices only.
func (c *Catalog) ActiveTotals(devices []Device) (hash, watts float64) {
	for _, d := range devices {
		t, ok := c.templates[d.TemplateID]
		if !ok {
			continue
		}
		hash += ActiveHash(t, d)
		watts += ActiveWatts(t, d)
	}
	return hash, watts
}

// FitToRoom keeps devices that fit into room. Devices already inside the grid
// keep their slot; devices outside it move to the lowest free slot, and are
// dropped once the room is full.
func FitToRoom(devices []Device, room Room) []Device {
	sorted := append([]Device(nil), devices...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	taken := make(map[int]bool, len(sorted))
	out := make([]Device, 0, len(sorted))
	var overflow []Device
	for _, d := range sorted {
		if d.Position >= 0 && d.Position < room.MaxSlots && !taken[d.Position] {
			taken[d.Position] = true
			out = append(out, d)
			continue
		}
		overflow = append(overflow, d)
	}

	slot := 0
	for _, d := range overflow {
		for slot < room.MaxSlots && taken[slot] {
			slot++
		}
		if slot >= room.MaxSlots {
			break
		}
		d.Position = slot
		taken[slot] = true
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// SlotTaken reports whether any device occupies slot.
func SlotTaken(devices []Device, slot int) bool {
	for _, d := range devices {
		if d.Position == slot {
			return true
		}
	}
	return false
}

// Find returns the index of the device with instanceID, or -1.
func Find(devices []Device, instanceID string) int {
	for i, d := range devices {
		if d.InstanceID == instanceID {
			return i
		}
	}
	return -1
}
