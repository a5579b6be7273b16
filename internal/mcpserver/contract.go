package mcpserver

// AttributesContract describes the link attributes format that LLM
// consumers should follow when creating or updating links.
const AttributesContract = `# Link Attributes Contract

Every link carries an ` + "`" + `attributes` + "`" + ` value. The server stores it verbatim and
never interprets it, but page renderers rely on the conventions below.

## Structure

` + "```" + `json
{
  "title": "My blog",                  // REQUIRED by renderers, shown as the button label
  "url": "https://example.com",        // REQUIRED by renderers, absolute http(s) URL
  "image": "/images/blog.png",         // OPTIONAL, thumbnail path
  "enabled": true                      // OPTIONAL, hidden from the public page when false
}
` + "```" + `

## Rules

1. **Attributes must be a JSON object.** Arrays, strings and numbers are rejected.
2. **Order is not an attribute.** Position is managed by the server; use
   ` + "`" + `reorder_links` + "`" + ` to change it.
3. **Updates replace the whole object.** Send every key you want to keep.
4. **Unknown keys are preserved** and passed through to renderers unchanged.
`
