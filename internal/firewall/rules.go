package firewall

// DefaultRules is the built-in detection set. Weights are tuned so a single
// strong injection pattern blocks outright (weight >= 1.0) while weaker
// signals accumulate toward sandbox/review thresholds.
func DefaultRules() []Rule {
	return []Rule{
		// Prompt injection
		{
			Name:     "injection_ignore_instructions",
			Pattern:  `ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`,
			Category: CategoryPromptInjection,
			Weight:   1.0,
		},
		{
			Name:     "injection_disregard_system",
			Pattern:  `disregard\s+(the\s+)?(system\s+prompt|your\s+(instructions|guidelines|rules))`,
			Category: CategoryPromptInjection,
			Weight:   1.0,
		},
		{
			Name:     "injection_reveal_system_prompt",
			Pattern:  `(reveal|print|repeat|show)\s+(me\s+)?(your|the)\s+(system\s+prompt|initial\s+instructions|hidden\s+instructions)`,
			Category: CategoryPromptInjection,
			Weight:   0.6,
		},
		{
			Name:     "injection_new_instructions",
			Pattern:  `your\s+new\s+(instructions|rules|task)\s+(are|is)`,
			Category: CategoryPromptInjection,
			Weight:   0.5,
		},

		// Jailbreak
		{
			Name:     "jailbreak_dan",
			Pattern:  `\b(dan|do\s+anything\s+now)\s+mode\b`,
			Category: CategoryJailbreak,
			Weight:   0.8,
		},
		{
			Name:     "jailbreak_no_restrictions",
			Pattern:  `(pretend|act|behave)\s+(as\s+if\s+|like\s+)?you\s+(have|had)\s+no\s+(restrictions|limitations|filters|guidelines)`,
			Category: CategoryJailbreak,
			Weight:   0.8,
		},
		{
			Name:     "jailbreak_developer_mode",
			Pattern:  `enable\s+developer\s+mode`,
			Category: CategoryJailbreak,
			Weight:   0.5,
		},

		// Data exfiltration
		{
			Name:     "exfil_post_to_url",
			Pattern:  `(send|post|upload|exfiltrate)\s+(all\s+)?(the\s+)?(data|conversation|history|contents?|secrets?)\s+to\s+https?://`,
			Category: CategoryDataExfiltration,
			Weight:   1.0,
		},
		{
			Name:     "exfil_embed_in_markdown",
			Pattern:  `!\[[^\]]*\]\(https?://[^)]*\{\{`,
			Category: CategoryDataExfiltration,
			Weight:   0.7,
		},

		// Credential theft
		{
			Name:     "cred_api_key_harvest",
			Pattern:  `(list|show|print|echo)\s+(all\s+)?(api[_\s-]?keys?|tokens?|passwords?|credentials?)\s+(you|in\s+the\s+(environment|config))`,
			Category: CategoryCredentialTheft,
			Weight:   0.8,
		},
		{
			Name:     "cred_env_dump",
			Pattern:  `(cat|printenv|env)\s+.*(\.env|/etc/passwd|id_rsa)`,
			Category: CategoryCredentialTheft,
			Weight:   0.7,
		},

		// Malicious code
		{
			Name:     "malcode_reverse_shell",
			Pattern:  `(bash\s+-i\s+>&|nc\s+-e\s+/bin/|/dev/tcp/\d)`,
			Category: CategoryMaliciousCode,
			Weight:   0.9,
		},
		{
			Name:     "malcode_destructive_rm",
			Pattern:  `rm\s+-rf\s+(/|~|\$HOME)(\s|$)`,
			Category: CategoryMaliciousCode,
			Weight:   0.6,
		},
	}
}
