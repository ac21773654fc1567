package game

// botNames is the display-name pool for synthetic bettors.
var botNames = []string{
	"Bear", "Wolf", "Tiger", "Fox", "Lion", "Eagle", "Shark", "Hawk", "Panda", "Dragon",
	"Deer", "Rabbit", "Snake", "Horse", "Falcon", "Leopard", "Jaguar", "Panther", "Lynx", "Cobra",
	"Raven", "Crow", "Owl", "Rhino", "Buffalo", "Gorilla", "Cheetah", "Cougar", "Vulture", "Scorpion",
	"Phoenix", "Griffin", "Titan", "Zeus", "Thor", "Odin", "Athena", "Apollo", "Ares", "Hades",
	"Poseidon", "Hercules", "Perseus", "Achilles", "Medusa", "Hydra", "Cerberus", "Minotaur", "Cyclops", "Sphinx",
	"Valkyrie", "Fenrir", "Loki", "Freya", "Baldur",
	"Shadow", "Ghost", "Blade", "Storm", "Viper", "Hunter", "Warrior", "Knight", "Ranger", "Mage",
	"Rogue", "Ninja", "Samurai", "Wizard", "Archer", "Assassin", "Paladin", "Berserker", "Sorcerer", "Warlock",
	"Druid", "Monk", "Barbarian", "Necromancer", "Bard", "Cleric", "Templar", "Gladiator", "Reaper", "Slayer",
	"Sky", "Cloud", "Thunder", "Lightning", "Frost", "Blaze", "Star", "Moon", "Nova", "Solar",
	"Comet", "Meteor", "Aurora", "Eclipse", "Zenith", "Horizon", "Dawn", "Dusk", "Twilight", "Midnight",
	"Solstice", "Equinox", "Nebula", "Galaxy", "Cosmos",
	"Crimson", "Azure", "Emerald", "Onyx", "Silver", "Golden", "Ruby", "Sapphire", "Amber", "Jade",
	"Pearl", "Diamond", "Obsidian", "Ivory", "Ebony", "Scarlet", "Violet", "Indigo", "Cyan", "Magenta",
	"Phantom", "Mystic", "Legend", "Champion", "Master", "Alpha", "Omega", "Prime", "Apex", "Nexus",
	"Vortex", "Chaos", "Fury", "Wrath", "Valor", "Honor", "Glory", "Victory", "Destiny", "Infinity",
}
