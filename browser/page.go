package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	storefront "beat-publish-pipeline/05_storefront"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// ErrNoElement is returned when an action targets a selector with no match.
var ErrNoElement = errors.New("no matching element")

const refAttr = "data-bsp-ref"

// resolverJS evaluates a selector against the live document and applies
// op to the result. Role queries match on the accessible name, plain text
// queries keep only the innermost matching elements.
const resolverJS = `(function(q, op, arg) {
  const roles = {
    button: 'button,[role="button"],input[type="button"],input[type="submit"]',
    menuitem: '[role="menuitem"],[role="menuitemradio"],[role="menuitemcheckbox"]',
    link: 'a[href],[role="link"]',
    textbox: 'input:not([type]),input[type="text"],textarea,[role="textbox"]'
  };
  const textOf = el => (el.innerText || el.textContent || '').trim();
  const nameOf = el => (el.getAttribute('aria-label') || textOf(el) || el.value || '').trim();
  function all(s) {
    let roots = [document];
    if (s.within) {
      const p = one(s.within);
      roots = p ? [p] : [];
    }
    let css = s.css || '*';
    if (!s.css && s.role) css = roles[s.role] || '[role="' + s.role + '"]';
    let out = [];
    for (const r of roots) out.push(...r.querySelectorAll(css));
    if (s.text) {
      const re = new RegExp(s.text, 'i');
      out = out.filter(el => re.test(s.role ? nameOf(el) : textOf(el)));
      if (!s.css && !s.role) {
        out = out.filter(el => !Array.from(el.children).some(c => re.test(textOf(c))));
      }
    }
    return out;
  }
  function one(s) {
    const els = all(s);
    const i = s.index < 0 ? els.length + s.index : s.index;
    return els[i] || null;
  }
  function shown(el) {
    if (!el || !el.isConnected) return false;
    const st = getComputedStyle(el);
    if (st.display === 'none' || st.visibility === 'hidden') return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 || r.height > 0;
  }
  switch (op) {
  case 'count': return all(q).length;
  case 'visible': return shown(one(q));
  case 'hide':
    all(q).forEach(el => { el.style.display = 'none'; });
    return true;
  }
  const el = one(q);
  if (!el) return null;
  switch (op) {
  case 'text': return textOf(el);
  case 'value': return el.value === undefined ? '' : String(el.value);
  case 'attr': return el.getAttribute(arg) || '';
  case 'tag':
    el.setAttribute('` + refAttr + `', arg);
    return shown(el) ? 'visible' : 'hidden';
  case 'click':
    el.click();
    return 'ok';
  case 'reveal':
    el.hidden = false;
    el.removeAttribute('hidden');
    el.disabled = false;
    el.style.display = 'block';
    el.style.visibility = 'visible';
    el.style.opacity = '1';
    return 'ok';
  case 'fill': {
    el.focus();
    const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
    Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, arg);
    el.dispatchEvent(new Event('input', {bubbles: true}));
    el.dispatchEvent(new Event('change', {bubbles: true}));
    return 'ok';
  }
  }
  return null;
})`

type jsSelector struct {
	CSS    string      `json:"css,omitempty"`
	Role   string      `json:"role,omitempty"`
	Text   string      `json:"text,omitempty"`
	Index  int         `json:"index"`
	Within *jsSelector `json:"within,omitempty"`
}

func toJS(sel storefront.Selector) *jsSelector {
	out := &jsSelector{CSS: sel.CSS, Role: sel.Role, Text: sel.Text, Index: sel.Index}
	if sel.Within != nil {
		out.Within = toJS(*sel.Within)
	}
	return out
}

// expression builds the resolver call for sel.
func expression(sel storefront.Selector, op, arg string) (string, error) {
	query, err := json.Marshal(toJS(sel))
	if err != nil {
		return "", err
	}
	o, _ := json.Marshal(op)
	a, _ := json.Marshal(arg)
	return fmt.Sprintf("%s(%s, %s, %s)", resolverJS, query, o, a), nil
}

var refSeq atomic.Int64

// Page is a storefront.Page on one chromedp tab.
type Page struct {
	tab          context.Context
	log          *zap.SugaredLogger
	clickTimeout time.Duration
}

func newPage(tab context.Context, clickTimeout time.Duration, log *zap.SugaredLogger) *Page {
	if clickTimeout <= 0 {
		clickTimeout = 10 * time.Second
	}
	return &Page{tab: tab, log: log, clickTimeout: clickTimeout}
}

// run executes actions on the tab, bounded by the caller's context.
// Cancelling the derived context aborts the actions but leaves the tab open.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(p.tab, deadline)
	} else {
		runCtx, cancel = context.WithCancel(p.tab)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (p *Page) eval(ctx context.Context, sel storefront.Selector, op, arg string, out any) error {
	expr, err := expression(sel, op, arg)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

// evalElement runs an op that needs a single element and fails with
// ErrNoElement when there is none.
func (p *Page) evalElement(ctx context.Context, sel storefront.Selector, op, arg string) (string, error) {
	var res *string
	if err := p.eval(ctx, sel, op, arg, &res); err != nil {
		return "", fmt.Errorf("%s %s: %w", op, sel, err)
	}
	if res == nil {
		return "", fmt.Errorf("%s %s: %w", op, sel, ErrNoElement)
	}
	return *res, nil
}

// tag marks the selected element so chromedp can address it by CSS.
func (p *Page) tag(ctx context.Context, sel storefront.Selector) (string, bool, error) {
	ref := strconv.FormatInt(refSeq.Add(1), 10)
	state, err := p.evalElement(ctx, sel, "tag", ref)
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf(`[%s="%s"]`, refAttr, ref), state == "visible", nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *Page) Count(ctx context.Context, sel storefront.Selector) (int, error) {
	var n int
	err := p.eval(ctx, sel, "count", "", &n)
	return n, err
}

func (p *Page) Visible(ctx context.Context, sel storefront.Selector) (bool, error) {
	var ok bool
	err := p.eval(ctx, sel, "visible", "", &ok)
	return ok, err
}

func (p *Page) Text(ctx context.Context, sel storefront.Selector) (string, error) {
	return p.evalElement(ctx, sel, "text", "")
}

func (p *Page) Value(ctx context.Context, sel storefront.Selector) (string, error) {
	return p.evalElement(ctx, sel, "value", "")
}

func (p *Page) Attr(ctx context.Context, sel storefront.Selector, name string) (string, error) {
	return p.evalElement(ctx, sel, "attr", name)
}

// Click dispatches a real mouse click on a visible element. Forced clicks
// and clicks on covered or zero-size elements go through the DOM instead.
func (p *Page) Click(ctx context.Context, sel storefront.Selector, force bool) error {
	if force {
		_, err := p.evalElement(ctx, sel, "click", "")
		return err
	}
	ref, visible, err := p.tag(ctx, sel)
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("click %s: element not visible", sel)
	}
	clickCtx, cancel := context.WithTimeout(ctx, p.clickTimeout)
	defer cancel()
	if err := p.run(clickCtx, chromedp.Click(ref, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, sel storefront.Selector, value string) error {
	_, err := p.evalElement(ctx, sel, "fill", value)
	return err
}

func (p *Page) Press(ctx context.Context, sel storefront.Selector, key string) error {
	ref, _, err := p.tag(ctx, sel)
	if err != nil {
		return err
	}
	keys := key
	if key == "Enter" {
		keys = kb.Enter
	}
	if err := p.run(ctx, chromedp.SendKeys(ref, keys, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("press %s on %s: %w", key, sel, err)
	}
	return nil
}

func (p *Page) Reveal(ctx context.Context, sel storefront.Selector) error {
	_, err := p.evalElement(ctx, sel, "reveal", "")
	return err
}

func (p *Page) Hide(ctx context.Context, sel storefront.Selector) error {
	var ok bool
	return p.eval(ctx, sel, "hide", "", &ok)
}

func (p *Page) SetFiles(ctx context.Context, sel storefront.Selector, paths ...string) error {
	abs := make([]string, 0, len(paths))
	for _, path := range paths {
		a, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		abs = append(abs, a)
	}
	ref, _, err := p.tag(ctx, sel)
	if err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.SetUploadFiles(ref, abs, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("set files on %s: %w", sel, err)
	}
	p.log.Debugw("files attached", "selector", sel.String(), "files", abs)
	return nil
}

// Clipboard reads the page's clipboard. The opener grants the clipboard
// permission for the storefront origin.
func (p *Page) Clipboard(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Evaluate(`navigator.clipboard.readText()`, &text,
		func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithAwaitPromise(true)
		}))
	return text, err
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

var _ storefront.Page = (*Page)(nil)
