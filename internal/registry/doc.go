// Package registry defines the contract every bibliographic registry integration
// implements, together with the shared error taxonomy and rate-limited transport.
//
// Concrete integrations live in sub-packages:
//
//   - crossref: DOI deposits through the CrossRef deposit servlet. Submissions
//     are asynchronous and polled with CheckStatus.
//   - doaj: article records through the DOAJ REST API. Existing records are
//     found with Identify and updated in place.
//
// # Client
//
// A Client wraps one registry. Optional operations are advertised through
// Capabilities so the scheduler can skip steps a registry cannot perform:
//
//	caps := client.Capabilities()
//	if caps.Identify {
//	    res, err := client.Identify(ctx, article)
//	    // ...
//	}
//
// Every network call goes through a Transport, which waits on the target's
// rate limiter before handing the request to the HTTP client.
//
// # Errors
//
// Failures are reported as *Error values carrying an ErrorKind. The kind
// decides how the scheduler reacts:
//
//   - KindAuth and KindConfiguration abort the tick and are recorded as the
//     target's last global error (see IsGlobal).
//   - KindValidation and KindRender are scoped to one article, which is
//     marked as failed.
//   - KindConflict asks the scheduler to recreate the remote record.
//   - KindTransient covers network failures and 5xx responses.
//   - KindUnsupported is returned for operations outside Capabilities.
//
// Renderers report a missing or malformed article field as *RenderError;
// ClassifyRenderError turns it into a KindRender error.
package registry
