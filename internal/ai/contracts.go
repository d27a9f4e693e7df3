package ai

const fieldsContract = `Respond with a single JSON object holding the result of this phase. Use descriptive keys.`

const queriesContract = `Respond with a JSON object {"queries": ["..."]} listing up to three web search queries that ` +
	`cover the plan.`

const retrieveContract = `Read the retrieved sources and respond with a JSON object:
{"findings": [{"claim": "...", "source_url": "...", "confidence": "high|medium|low"}],
 "credibility": {"<url>": 0.0-1.0},
 "source_types": {"<url>": "web|academic|documentation|code"}}`

const triangulateContract = `Respond with a JSON object:
{"source_updates": [{"url": "<existing source url>", "verification_status": "verified|conflicted|unverified", ` +
	`"credibility_score": 0.0-1.0}],
 "findings": [{"claim": "...", "supporting_sources": ["..."], "conflicts": ["..."]}]}`

const refineContract = `Respond with a JSON object {"synthesis": {...}, "findings": [...]}. "synthesis" holds only ` +
	`the keys of the synthesis that change, "findings" any new evidence gathered for the gaps.`

const packageContract = `Write the final report as markdown. Cite sources inline as [N] using the source index ` +
	`and end with a "## Bibliography" section listing every cited source as ` +
	`[N] Author (Year). "Title". Venue. URL`
