package descrambler

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
)

type caidName struct {
	name string
	caid uint16
}

var caidNames = []caidName{
	{"Seca", 0x0100},
	{"CCETT", 0x0200},
	{"Deutsche Telecom", 0x0300},
	{"Eurodec", 0x0400},
	{"Viaccess", 0x0500},
	{"Irdeto", 0x0600},
	{"Irdeto", 0x0602},
	{"Irdeto", 0x0603},
	{"Irdeto", 0x0604},
	{"Irdeto", 0x0622},
	{"Irdeto", 0x0624},
	{"Irdeto", 0x0648},
	{"Irdeto", 0x0666},
	{"Jerroldgi", 0x0700},
	{"Matra", 0x0800},
	{"NDS", 0x0900},
	{"NDS", 0x0919},
	{"NDS", 0x091f},
	{"NDS", 0x092b},
	{"NDS", 0x09af},
	{"NDS", 0x09c4},
	{"NDS", 0x0960},
	{"NDS", 0x0963},
	{"Nokia", 0x0a00},
	{"Conax", 0x0b00},
	{"Conax", 0x0b01},
	{"Conax", 0x0b02},
	{"Conax", 0x0baa},
	{"NTL", 0x0c00},
	{"CryptoWorks", 0x0d00},
	{"CryptoWorks", 0x0d01},
	{"CryptoWorks", 0x0d02},
	{"CryptoWorks", 0x0d03},
	{"CryptoWorks", 0x0d05},
	{"CryptoWorks", 0x0d0f},
	{"CryptoWorks", 0x0d70},
	{"CryptoWorks ICE", 0x0d95},
	{"CryptoWorks ICE", 0x0d96},
	{"CryptoWorks ICE", 0x0d97},
	{"PowerVu", 0x0e00},
	{"PowerVu", 0x0e11},
	{"Sony", 0x0f00},
	{"Tandberg", 0x1000},
	{"Thompson", 0x1100},
	{"TV-Com", 0x1200},
	{"HPT", 0x1300},
	{"HRT", 0x1400},
	{"IBM", 0x1500},
	{"Nera", 0x1600},
	{"BetaCrypt", 0x1700},
	{"BetaCrypt", 0x1702},
	{"BetaCrypt", 0x1722},
	{"BetaCrypt", 0x1762},
	{"NagraVision", 0x1800},
	{"NagraVision", 0x1803},
	{"NagraVision", 0x1813},
	{"NagraVision", 0x1810},
	{"NagraVision", 0x1815},
	{"NagraVision", 0x1830},
	{"NagraVision", 0x1833},
	{"NagraVision", 0x1834},
	{"NagraVision", 0x183d},
	{"NagraVision", 0x1861},
	{"Titan", 0x1900},
	{"Telefonica", 0x2000},
	{"Stentor", 0x2100},
	{"Tadiran Scopus", 0x2200},
	{"BARCO AS", 0x2300},
	{"StarGuide", 0x2400},
	{"Mentor", 0x2500},
	{"EBU", 0x2600},
	{"GI", 0x4700},
	{"Telemann", 0x4800},
	{"DRECrypt", 0x4ae0},
	{"DRECrypt2", 0x4ae1},
	{"Bulcrypt", 0x4aee},
	{"Bulcrypt", 0x5581},
	{"Verimatrix", 0x5601},
}

// CAIDName returns the conditional access system name for caid, or the id
// in hex when it is not known.
func CAIDName(caid uint16) string {
	if e, ok := lo.Find(caidNames, func(e caidName) bool { return e.caid == caid }); ok {
		return e.name
	}
	return fmt.Sprintf("0x%x", caid)
}

// CAIDByName returns the first CAID registered under name. Anything else is
// parsed as a number in Go literal syntax; unparsable input yields 0.
func CAIDByName(name string) uint16 {
	if e, ok := lo.Find(caidNames, func(e caidName) bool { return e.name == name }); ok {
		return e.caid
	}
	v, err := strconv.ParseUint(name, 0, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

// CardType is the smartcard family behind a CAID.
type CardType int

const (
	CardUnknown CardType = iota
	CardIrdeto
	CardViaccess
	CardConax
	CardSeca
	CardDRE
	CardNagra
	CardNDS
	CardCryptoworks
	CardBulcrypt
)

var cardNames = [...]string{"unknown", "irdeto", "viaccess", "conax", "seca", "dre", "nagra", "nds", "cryptoworks", "bulcrypt"}

func (c CardType) String() string {
	if c < 0 || int(c) >= len(cardNames) {
		return cardNames[0]
	}
	return cardNames[c]
}

// DetectCardType classifies caid by its system byte.
func DetectCardType(caid uint16) CardType {
	switch caid {
	case 0x5581, 0x4aee:
		return CardBulcrypt
	}
	switch caid >> 8 {
	case 0x17, 0x06:
		return CardIrdeto
	case 0x05:
		return CardViaccess
	case 0x0b:
		return CardConax
	case 0x01:
		return CardSeca
	case 0x4a:
		return CardDRE
	case 0x18:
		return CardNagra
	case 0x09:
		return CardNDS
	case 0x0d:
		return CardCryptoworks
	}
	return CardUnknown
}
