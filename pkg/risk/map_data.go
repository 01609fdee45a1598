package risk

import "sync"

var (
	stdMapOnce sync.Once
	stdMapInst *WorldMap
)

// StandardMap returns the classic 42-territory, 6-continent world map. The
// map is built once and cached; subsequent calls return the same pointer.
// Callers must not mutate the returned map.
func StandardMap() *WorldMap {
	stdMapOnce.Do(func() {
		stdMapInst = buildStandardMap()
	})
	return stdMapInst
}

func buildStandardMap() *WorldMap {
	m := &WorldMap{
		Territories: make(map[string]*Territory, TerritoryCount),
		Continents:  make(map[string]*Continent, 6),
		Adjacencies: make(map[string][]string, TerritoryCount),
	}

	cont := func(id, name string, bonus int) {
		m.Continents[id] = &Continent{ID: id, Name: name, Bonus: bonus}
	}

	terr := func(id, name, continent string) {
		m.Territories[id] = &Territory{ID: id, Name: name, Continent: continent}
		m.ids = append(m.ids, id)
	}

	// border adds a bidirectional adjacency between two territories.
	border := func(a, b string) {
		m.Adjacencies[a] = append(m.Adjacencies[a], b)
		m.Adjacencies[b] = append(m.Adjacencies[b], a)
	}

	cont("north_america", "North America", 5)
	cont("south_america", "South America", 2)
	cont("europe", "Europe", 5)
	cont("africa", "Africa", 3)
	cont("asia", "Asia", 7)
	cont("australia", "Australia", 2)

	// --- North America (9) ---
	terr("ala", "Alaska", "north_america")
	terr("nwt", "Northwest Territory", "north_america")
	terr("grn", "Greenland", "north_america")
	terr("alb", "Alberta", "north_america")
	terr("ont", "Ontario", "north_america")
	terr("que", "Quebec", "north_america")
	terr("wus", "Western United States", "north_america")
	terr("eus", "Eastern United States", "north_america")
	terr("cam", "Central America", "north_america")

	// --- South America (4) ---
	terr("ven", "Venezuela", "south_america")
	terr("bra", "Brazil", "south_america")
	terr("per", "Peru", "south_america")
	terr("arg", "Argentina", "south_america")

	// --- Europe (7) ---
	terr("ice", "Iceland", "europe")
	terr("gbr", "Great Britain", "europe")
	terr("sca", "Scandinavia", "europe")
	terr("neu", "Northern Europe", "europe")
	terr("weu", "Western Europe", "europe")
	terr("seu", "Southern Europe", "europe")
	terr("ukr", "Ukraine", "europe")

	// --- Africa (6) ---
	terr("naf", "North Africa", "africa")
	terr("egy", "Egypt", "africa")
	terr("eaf", "East Africa", "africa")
	terr("con", "Congo", "africa")
	terr("saf", "South Africa", "africa")
	terr("mad", "Madagascar", "africa")

	// --- Asia (12) ---
	terr("ura", "Ural", "asia")
	terr("sib", "Siberia", "asia")
	terr("yak", "Yakutsk", "asia")
	terr("kam", "Kamchatka", "asia")
	terr("irk", "Irkutsk", "asia")
	terr("mon", "Mongolia", "asia")
	terr("jap", "Japan", "asia")
	terr("afg", "Afghanistan", "asia")
	terr("chi", "China", "asia")
	terr("mid", "Middle East", "asia")
	terr("ind", "India", "asia")
	terr("sia", "Siam", "asia")

	// --- Australia (4) ---
	terr("ino", "Indonesia", "australia")
	terr("ngu", "New Guinea", "australia")
	terr("wau", "Western Australia", "australia")
	terr("eau", "Eastern Australia", "australia")

	// --- North America borders ---
	border("ala", "nwt")
	border("ala", "alb")
	border("ala", "kam")
	border("nwt", "alb")
	border("nwt", "ont")
	border("nwt", "grn")
	border("grn", "ont")
	border("grn", "que")
	border("grn", "ice")
	border("alb", "ont")
	border("alb", "wus")
	border("ont", "que")
	border("ont", "wus")
	border("ont", "eus")
	border("que", "eus")
	border("wus", "eus")
	border("wus", "cam")
	border("eus", "cam")
	border("cam", "ven")

	// --- South America borders ---
	border("ven", "bra")
	border("ven", "per")
	border("bra", "per")
	border("bra", "arg")
	border("bra", "naf")
	border("per", "arg")

	// --- Europe borders ---
	border("ice", "gbr")
	border("ice", "sca")
	border("gbr", "sca")
	border("gbr", "neu")
	border("gbr", "weu")
	border("sca", "neu")
	border("sca", "ukr")
	border("neu", "ukr")
	border("neu", "seu")
	border("neu", "weu")
	border("weu", "seu")
	border("weu", "naf")
	border("seu", "ukr")
	border("seu", "mid")
	border("seu", "egy")
	border("seu", "naf")
	border("ukr", "ura")
	border("ukr", "afg")
	border("ukr", "mid")

	// --- Africa borders ---
	border("naf", "egy")
	border("naf", "eaf")
	border("naf", "con")
	border("egy", "mid")
	border("egy", "eaf")
	border("eaf", "mid")
	border("eaf", "mad")
	border("eaf", "saf")
	border("eaf", "con")
	border("con", "saf")
	border("saf", "mad")

	// --- Asia borders ---
	border("ura", "sib")
	border("ura", "chi")
	border("ura", "afg")
	border("sib", "yak")
	border("sib", "irk")
	border("sib", "mon")
	border("sib", "chi")
	border("yak", "kam")
	border("yak", "irk")
	border("kam", "irk")
	border("kam", "mon")
	border("kam", "jap")
	border("irk", "mon")
	border("mon", "jap")
	border("mon", "chi")
	border("afg", "chi")
	border("afg", "ind")
	border("afg", "mid")
	border("chi", "ind")
	border("chi", "sia")
	border("mid", "ind")
	border("ind", "sia")
	border("sia", "ino")

	// --- Australia borders ---
	border("ino", "ngu")
	border("ino", "wau")
	border("ngu", "wau")
	border("ngu", "eau")
	border("wau", "eau")

	return m
}
