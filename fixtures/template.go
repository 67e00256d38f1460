// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package fixtures

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Template placeholders. The fixture file consumed by the pallet
// benchmarks is generated by plain textual replacement into a Rust
// source template, one named placeholder per fixture field.
const (
	PlaceholderSeed           = "{{SEED}}"
	PlaceholderProvider       = "{{PROVIDER_ID}}"
	PlaceholderRoot           = "{{ROOT}}"
	PlaceholderFileKeys       = "{{FILE_KEYS}}"
	PlaceholderChallengeSets  = "{{CHALLENGE_SETS}}"
	PlaceholderProofs         = "{{PROOFS}}"
	PlaceholderInclusionProof = "{{INCLUSION_PROOF}}"
	PlaceholderOwner          = "{{OWNER}}"
	PlaceholderBucketID       = "{{BUCKET_ID}}"
	PlaceholderLocation       = "{{LOCATION}}"
	PlaceholderFingerprint    = "{{FINGERPRINT}}"
	PlaceholderFileSize       = "{{FILE_SIZE}}"
)

// DefaultTemplate is the benchmark_proofs.rs skeleton the renderer
// fills in when no template file is given.
const DefaultTemplate = `// Generated file, do not edit.

pub const BENCHMARK_SEED: [u8; 32] = hex_literal::hex!("{{SEED}}");
pub const BENCHMARK_PROVIDER_ID: [u8; 32] = hex_literal::hex!("{{PROVIDER_ID}}");
pub const BENCHMARK_ROOT: [u8; 32] = hex_literal::hex!("{{ROOT}}");

pub fn benchmark_file_keys() -> Vec<Vec<u8>> {
    vec![
{{FILE_KEYS}}
    ]
}

pub fn benchmark_challenges() -> Vec<Vec<(Vec<u8>, bool)>> {
    vec![
{{CHALLENGE_SETS}}
    ]
}

pub fn benchmark_proofs() -> Vec<Vec<u8>> {
    vec![
{{PROOFS}}
    ]
}

pub fn benchmark_inclusion_proof() -> Vec<u8> {
    hex::decode("{{INCLUSION_PROOF}}").unwrap()
}

pub const BENCHMARK_OWNER: &[u8] = &hex_literal::hex!("{{OWNER}}");
pub const BENCHMARK_BUCKET_ID: [u8; 32] = hex_literal::hex!("{{BUCKET_ID}}");
pub const BENCHMARK_LOCATION: &[u8] = &hex_literal::hex!("{{LOCATION}}");
pub const BENCHMARK_FINGERPRINT: [u8; 32] = hex_literal::hex!("{{FINGERPRINT}}");
pub const BENCHMARK_FILE_SIZE: u64 = {{FILE_SIZE}};
`

func bareHex(b []byte) string {
	return strings.TrimPrefix(hexutil.Encode(b), "0x")
}

func renderFileKeys(fx *Fixture) string {
	var sb strings.Builder
	for _, key := range fx.FileKeys {
		fmt.Fprintf(&sb, "        hex::decode(\"%s\").unwrap(),\n", bareHex(key[:]))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderChallengeSets(fx *Fixture) string {
	var sb strings.Builder
	for _, set := range fx.ChallengeSets {
		sb.WriteString("        vec![\n")
		for _, ch := range set {
			fmt.Fprintf(&sb, "            (hex::decode(\"%s\").unwrap(), %t),\n",
				bareHex(ch.Key[:]), ch.RemoveMutation)
		}
		sb.WriteString("        ],\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderProofs(fx *Fixture) string {
	var sb strings.Builder
	for _, blob := range fx.Proofs {
		fmt.Fprintf(&sb, "        hex::decode(\"%s\").unwrap(),\n", bareHex(blob))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Render fills a benchmark_proofs.rs template with the fixture's
// fields.
func Render(template string, fx *Fixture) string {
	out := template
	out = strings.ReplaceAll(out, PlaceholderSeed, bareHex(fx.Seed[:]))
	out = strings.ReplaceAll(out, PlaceholderProvider, bareHex(fx.Provider[:]))
	out = strings.ReplaceAll(out, PlaceholderRoot, bareHex(fx.Root[:]))
	out = strings.ReplaceAll(out, PlaceholderFileKeys, renderFileKeys(fx))
	out = strings.ReplaceAll(out, PlaceholderChallengeSets, renderChallengeSets(fx))
	out = strings.ReplaceAll(out, PlaceholderProofs, renderProofs(fx))
	out = strings.ReplaceAll(out, PlaceholderInclusionProof, bareHex(fx.InclusionProof))
	out = strings.ReplaceAll(out, PlaceholderOwner, bareHex(fx.Metadata.Owner))
	out = strings.ReplaceAll(out, PlaceholderBucketID, bareHex(fx.Metadata.BucketID[:]))
	out = strings.ReplaceAll(out, PlaceholderLocation, bareHex(fx.Metadata.Location))
	out = strings.ReplaceAll(out, PlaceholderFingerprint, bareHex(fx.Metadata.Fingerprint[:]))
	out = strings.ReplaceAll(out, PlaceholderFileSize, fmt.Sprintf("%d", fx.Metadata.FileSize))
	return out
}

// WriteRustFixture renders the fixture into a Rust source file. An
// empty templatePath selects the built-in template.
func WriteRustFixture(outPath, templatePath string, fx *Fixture) error {
	template := DefaultTemplate
	if templatePath != "" {
		raw, err := os.ReadFile(templatePath)
		if err != nil {
			return err
		}
		template = string(raw)
	}
	return os.WriteFile(outPath, []byte(Render(template, fx)), 0644)
}
