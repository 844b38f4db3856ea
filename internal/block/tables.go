// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package block

import "strings"

// Role is a coarse functional category of a block.
type Role string

// Roles assigned on import.
const (
	RoleCDS               Role = "cds"
	RolePromoter          Role = "promoter"
	RoleTerminator        Role = "terminator"
	RoleOriginReplication Role = "originReplication"
	RoleRBS               Role = "rbs"
)

// Feature types are matched exactly; "regulatory" is mapped to promoter since
// promoters are the common case of regulatory features.
var roleTable = map[string]Role{
	"CDS":         RoleCDS,
	"cds":         RoleCDS,
	"regulatory":  RolePromoter,
	"promoter":    RolePromoter,
	"terminator":  RoleTerminator,
	"gene":        RoleCDS,
	"exon":        RoleCDS,
	"mat_peptide": RoleCDS,
	"rep_origin":  RoleOriginReplication,
	"rbs":         RoleRBS,
}

// RoleForType returns the role for a flat-file feature type, or "" if the type
// has none.
func RoleForType(featureType string) Role {
	return roleTable[featureType]
}

// Preferred qualifiers holding a feature's name, most preferred first, keyed by
// lower-cased feature type.
var nameQualifierTable = map[string][]string{
	"assembly_gap":    {"label"},
	"c_region":        {"standard_name", "gene", "product", "label"},
	"cds":             {"standard_name", "gene", "product", "function", "label"},
	"centromere":      {"standard_name", "label"},
	"d-loop":          {"gene", "label"},
	"d-segment":       {"gene", "product", "label"},
	"exon":            {"standard_name", "gene", "product", "function", "label"},
	"gap":             {"label"},
	"gene":            {"standard_name", "gene", "product", "function", "label"},
	"idna":            {"standard_name", "gene", "function", "label"},
	"intron":          {"standard_name", "gene", "function", "label"},
	"j_segment":       {"standard_name", "gene", "product", "label"},
	"ltr":             {"standard_name", "gene", "function", "label"},
	"mat_peptide":     {"standard_name", "gene", "product", "function", "label"},
	"misc_binding":    {"gene", "function", "label"},
	"misc_difference": {"standard_name", "gene", "label"},
	"misc_feature":    {"standard_name", "gene", "product", "function", "label"},
	"misc_recomb":     {"standard_name", "gene", "label"},
	"misc_rna":        {"standard_name", "gene", "product", "function", "label"},
	"misc_structure":  {"standard_name", "gene", "function", "label"},
	"misc_element":    {"standard_name", "gene", "function", "label"},
	"modified_base":   {"gene", "label"},
	"mrna":            {"standard_name", "gene", "product", "function", "label"},
	"ncrna":           {"standard_name", "gene", "product", "function", "label"},
	"n_region":        {"standard_name", "gene", "product", "label"},
	"old_sequence":    {"gene", "label"},
	"operon":          {"standard_name", "function", "label"},
	"orit":            {"standard_name", "gene", "label"},
	"polya_site":      {"gene", "label"},
	"precursor_rna":   {"standard_name", "gene", "function", "label"},
	"prim_transcript": {"standard_name", "gene", "function", "label"},
	"primer_bind":     {"standard_name", "gene", "label"},
	"protein_bind":    {"standard_name", "gene", "function", "label"},
	"regulatory":      {"standard_name", "gene", "function", "label"},
	"repeat_region":   {"standard_name", "gene", "function", "label"},
	"rep_origin":      {"standard_name", "gene", "label"},
	"rrna":            {"standard_name", "gene", "product", "function", "label"},
	"s_region":        {"standard_name", "gene", "product", "label"},
	"sig_peptide":     {"standard_name", "gene", "product", "function", "label"},
	"source":          {"label"},
	"stem_loop":       {"standard_name", "gene", "function", "label"},
	"sts":             {"standard_name", "gene", "label"},
	"telomere":        {"standard_name", "label"},
	"tmrna":           {"standard_name", "gene", "product", "function", "label"},
	"transit_peptide": {"standard_name", "gene", "product", "function", "label"},
	"trna":            {"standard_name", "gene", "product", "function", "label"},
	"unsure":          {"gene", "label"},
	"vregion":         {"standard_name", "gene", "product", "label"},
	"v_segment":       {"standard_name", "gene", "product", "label"},
	"variation":       {"standard_name", "gene", "product", "label"},
	"3'utr":           {"standard_name", "gene", "function", "label"},
	"5'utr":           {"standard_name", "gene", "function", "label"},
}

// NameQualifiers returns the qualifier keys that may hold the name of a feature
// of the given type, most preferred first.  The boolean is false for types
// with no known name qualifiers.
func NameQualifiers(featureType string) ([]string, bool) {
	keys, ok := nameQualifierTable[strings.ToLower(featureType)]
	return keys, ok
}
