package session

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

var (
	nameTitles   = []string{"Spore", "Network", "Colony", "Cluster", "Node", "Branch", "Root", "Cap"}
	nameMushroom = []string{"Shiitake", "Oyster", "Chanterelle", "Morel", "Porcini", "Enoki", "Maitake", "Reishi", "Cordyceps", "Agaricus"}
	nameSuffixes = []string{"Weaver", "Connector", "Spreader", "Fruiter", "Decomposer", "Networker", "Symbiont", "Grower"}
)

// MyceliumName gera um nome "<Title> <Mushroom> <Suffix>" para o usuário sintetizado
func MyceliumName() string {
	return nameTitles[rand.IntN(len(nameTitles))] + " " +
		nameMushroom[rand.IntN(len(nameMushroom))] + " " +
		nameSuffixes[rand.IntN(len(nameSuffixes))]
}

// NewID gera ids do cliente no formato "<prefix>_<hex>"
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
