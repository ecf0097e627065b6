package db

// Schema defines the SQLite schema for cached species records.
// Table and column names match the layout already deployed on devices,
// so an existing pokemon.db opens without migration.
const Schema = `
CREATE TABLE IF NOT EXISTS pokemon (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    types TEXT NOT NULL,
    height REAL NOT NULL,
    weight REAL NOT NULL,
    sprite_path TEXT,
    last_updated TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pokemon_name ON pokemon(lower(name));

CREATE TABLE IF NOT EXISTS pokemon_descriptions (
    pokemon_id INTEGER,
    language TEXT,
    description TEXT,
    FOREIGN KEY (pokemon_id) REFERENCES pokemon (id),
    PRIMARY KEY (pokemon_id, language)
);
`

// Row is a pokemon table row with types still serialized.
type Row struct {
	ID          int
	Name        string
	Types       string
	Height      float64
	Weight      float64
	SpritePath  string
	LastUpdated string
}
