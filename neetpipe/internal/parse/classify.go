package parse

import (
	"math"
	"regexp"
	"strings"
)

func keywordRe(words ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
}

var (
	physicsKeywords = keywordRe(
		"force", "velocity", "acceleration", "momentum", "energy", "power", "work",
		"motion", "gravity", "gravitational", "friction", "current", "voltage",
		"resistance", "magnetic", "electric", "charge", "wave", "frequency",
		"wavelength", "lens", "mirror", "refraction", "optics", "thermodynamics",
		"pressure", "mass", "speed", "newton", "joule", "capacitor", "circuit",
		"photon", "quantum", "oscillation", "torque",
	)
	chemistryKeywords = keywordRe(
		"atom", "atomic", "molecule", "compound", "reaction", "bond", "acid", "base",
		"salt", "ph", "oxidation", "reduction", "electron", "orbital", "mole", "molar",
		"organic", "inorganic", "element", "periodic", "valency", "catalyst",
		"equilibrium", "isomer", "hydrocarbon", "alkane", "alkene", "alkyne", "ester",
		"polymer", "titration", "enthalpy", "entropy", "ion", "ionic",
	)
	biologyKeywords = keywordRe(
		"cell", "tissue", "organ", "dna", "rna", "gene", "chromosome", "protein",
		"enzyme", "photosynthesis", "respiration", "plant", "animal", "species",
		"evolution", "ecology", "hormone", "blood", "heart", "kidney", "neuron",
		"mitosis", "meiosis", "bacteria", "virus", "chlorophyll", "mitochondria",
		"genetics", "inheritance", "reproduction", "ecosystem", "nucleus",
	)
)

// ClassifySubject votes on keyword frequency. Ties resolve Physics, then
// Chemistry, then Biology; text with no keyword at all ends up in Biology.
func ClassifySubject(text string) Subject {
	p := len(physicsKeywords.FindAllStringIndex(text, -1))
	c := len(chemistryKeywords.FindAllStringIndex(text, -1))
	b := len(biologyKeywords.FindAllStringIndex(text, -1))
	switch {
	case p >= max(c, b):
		if p == 0 {
			// No keyword at all.
			return SubjectBiology
		}
		return SubjectPhysics
	case c >= b:
		return SubjectChemistry
	default:
		return SubjectBiology
	}
}

var complexitySignals = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:calculate|compute|find|determine|evaluate|estimate|derive)\b`),
	regexp.MustCompile(`\d+\.\d+|\d+\s*/\s*\d+`),
	regexp.MustCompile(`\([^()]*[+\-*/=^][^()]*\)`),
	regexp.MustCompile(`\b[A-Z]{2,}\b`),
}

// ClassifyComplexity counts how many complexity signals appear in text.
func ClassifyComplexity(text string) Complexity {
	n := 0
	for _, re := range complexitySignals {
		if re.MatchString(text) {
			n++
		}
	}
	switch {
	case n >= 3:
		return ComplexityHigh
	case n >= 1:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

var (
	mathRe  = regexp.MustCompile(`[0-9+\-×÷=√π∑∫^°±≤≥∞∆Δ]`)
	imageRe = regexp.MustCompile(`(?i)\b(?:figure|fig|diagram|image|graph|picture|shown\s+below)\b`)
)

// HasMath reports whether text carries digits, operators or math symbols.
func HasMath(text string) bool { return mathRe.MatchString(text) }

// HasImage reports whether text refers to a figure, diagram or image.
func HasImage(text string) bool { return imageRe.MatchString(text) }

// Confidence scores how reliable an extracted question looks.
func Confidence(questionText string, optionCount int, hasMath bool) float64 {
	c := 0.5
	n := len([]rune(questionText))
	if n > 20 {
		c += 0.1
	}
	if n > 50 {
		c += 0.1
	}
	switch {
	case optionCount >= 4:
		c += 0.2
	case optionCount >= 3:
		c += 0.1
	}
	if hasMath {
		c += 0.1
	}
	if strings.Contains(questionText, "?") {
		c += 0.1
	}
	return math.Min(c, 1.0)
}
